package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/urfave/cli/v2"

	"github.com/jcmexdev/order-confirmation/internal/confirmation/bootstrap"
	"github.com/jcmexdev/order-confirmation/internal/order-service/domain"
	"github.com/jcmexdev/order-confirmation/internal/order-service/storage/sqlite"
	"github.com/jcmexdev/order-confirmation/internal/pkg/telemetry"
)

func main() {
	app := &cli.App{
		Name:  "confirmctl",
		Usage: "inspect and drive order confirmations",
		Flags: globalFlags,
		Commands: []*cli.Command{
			{
				Name:  "confirm",
				Usage: "drive an order to completed or failed",
				Flags: []cli.Flag{
					flagOrderID,
					&cli.StringFlag{Name: "outcome", Value: string(domain.StatusCompleted), Usage: "completed or failed"},
				},
				Action: func(cCtx *cli.Context) error {
					desired, err := domain.ParseStatus(cCtx.String("outcome"))
					if err != nil {
						return err
					}
					return withStack(cCtx, func(stack *bootstrap.Stack) error {
						res, err := stack.Engine.Confirm(cCtx.Context, cCtx.String(flagOrderID.Name), desired)
						if err != nil {
							return err
						}
						out := newOrderOutput(res.Order)
						out.Outcome = string(res.Outcome)
						out.Attempts = res.Attempts
						return printJSON(out)
					})
				},
			},
			{
				Name:  "show",
				Usage: "print the stored order",
				Flags: []cli.Flag{flagOrderID},
				Action: func(cCtx *cli.Context) error {
					return withStack(cCtx, func(stack *bootstrap.Stack) error {
						order, err := stack.Store.ReadOrder(cCtx.Context, cCtx.String(flagOrderID.Name))
						if err != nil {
							return err
						}
						return printJSON(newOrderOutput(order))
					})
				},
			},
			{
				Name:  "seed",
				Usage: "create a pending order",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "order-id", Aliases: []string{"o"}, Usage: "defaults to a random uuid"},
					&cli.StringFlag{Name: "email", Value: "buyer@example.com"},
					&cli.StringFlag{Name: "program", Value: "Intro Course"},
					&cli.StringFlag{Name: "amount", Value: "49.90"},
				},
				Action: func(cCtx *cli.Context) error {
					amount, err := decimal.NewFromString(cCtx.String("amount"))
					if err != nil {
						return fmt.Errorf("invalid amount: %w", err)
					}
					id := cCtx.String("order-id")
					if id == "" {
						id = uuid.NewString()
					}
					return withStack(cCtx, func(stack *bootstrap.Stack) error {
						order, err := stack.Store.CreateOrder(cCtx.Context, domain.Order{
							ID:           id,
							Status:       domain.StatusPending,
							Email:        cCtx.String("email"),
							ProgramTitle: cCtx.String("program"),
							Amount:       amount,
						})
						if err != nil {
							return err
						}
						return printJSON(newOrderOutput(order))
					})
				},
			},
			{
				Name:  "pending",
				Usage: "list orders still waiting for confirmation (sqlite driver)",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Value: 50},
				},
				Action: func(cCtx *cli.Context) error {
					return withStack(cCtx, func(stack *bootstrap.Stack) error {
						store, ok := stack.Store.(*sqlite.Store)
						if !ok {
							return errors.New("pending requires --store-driver=sqlite")
						}
						orders, err := store.ListByStatus(cCtx.Context, domain.StatusPending, cCtx.Int("limit"))
						if err != nil {
							return err
						}
						out := make([]orderOutput, 0, len(orders))
						for _, o := range orders {
							out = append(out, newOrderOutput(o))
						}
						return printJSON(out)
					})
				},
			},
			{
				Name:  "journal",
				Usage: "print the confirmation journal of an order",
				Flags: []cli.Flag{flagOrderID},
				Action: func(cCtx *cli.Context) error {
					if cCtx.String(flagJournalPath.Name) == "" {
						return fmt.Errorf("journal requires --%s", flagJournalPath.Name)
					}
					return withStack(cCtx, func(stack *bootstrap.Stack) error {
						entries, err := stack.Journal.List(cCtx.Context, cCtx.String(flagOrderID.Name))
						if err != nil {
							return err
						}
						return printJSON(entries)
					})
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func withStack(cCtx *cli.Context, fn func(*bootstrap.Stack) error) error {
	logger := telemetry.NewLogger(os.Stderr, cCtx.String(flagLogLevel.Name))
	stack, err := bootstrap.New(stackConfig(cCtx), logger)
	if err != nil {
		return err
	}
	defer stack.Close()
	return fn(stack)
}

type orderOutput struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	PaymentStatus string `json:"payment_status"`
	Version       int64  `json:"version"`
	ProgramTitle  string `json:"program_title,omitempty"`
	Email         string `json:"email,omitempty"`
	Amount        string `json:"amount"`
	UpdatedAt     string `json:"updated_at"`
	Outcome       string `json:"outcome,omitempty"`
	Attempts      int    `json:"attempts,omitempty"`
}

func newOrderOutput(o domain.Order) orderOutput {
	return orderOutput{
		ID:            o.ID,
		Status:        string(o.Status),
		PaymentStatus: string(o.PaymentStatus),
		Version:       o.Version,
		ProgramTitle:  o.ProgramTitle,
		Email:         o.Email,
		Amount:        o.Amount.StringFixed(2),
		UpdatedAt:     o.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

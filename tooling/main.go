package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"storefront-checkout/pkg/api"
	"storefront-checkout/pkg/checkout"
	"storefront-checkout/pkg/config"
	"storefront-checkout/pkg/models"
	events "storefront-checkout/pkg/nats"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// cli carries the app opened by the root command's pre-run hook.
type cli struct {
	app *app
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	rootCmd := &cobra.Command{
		Use:           "tooling",
		Short:         "Drive the storefront checkout against the local simulators",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(config.Load())
			if err != nil {
				return err
			}
			c.app = a
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if c.app != nil {
				c.app.Close()
			}
		},
	}

	rootCmd.AddCommand(c.resetDBCmd())
	rootCmd.AddCommand(c.loginCmd())
	rootCmd.AddCommand(c.logoutCmd())
	rootCmd.AddCommand(c.checkoutCmd())
	rootCmd.AddCommand(c.ordersCmd())
	rootCmd.AddCommand(c.cancelCmd())
	rootCmd.AddCommand(c.queueCmd())
	rootCmd.AddCommand(c.eventsCmd())
	rootCmd.AddCommand(c.simulateCmd())

	return rootCmd
}

func (c *cli) resetDBCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resetdb",
		Short: "Drop and recreate the local state tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.app.db.ResetTables(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Database reset completed")
			return nil
		},
	}
}

// localDevice opens the device persisted in the local store and finishes
// any payment callback an earlier run left behind.
func (c *cli) localDevice(ctx context.Context, w io.Writer) (*device, error) {
	d, err := c.app.newDevice(ctx, c.app.db)
	if err != nil {
		return nil, err
	}
	out, recovered, err := d.reconciler.Recover(ctx)
	if recovered {
		if err != nil {
			fmt.Fprintf(w, "Recovered payment %s failed: %v\n", out.TxnRef, err)
		} else {
			fmt.Fprintf(w, "Recovered payment %s: %s (%s)\n", out.TxnRef, out.Kind, out.Message)
		}
	}
	return d, nil
}

func (c *cli) loginCmd() *cobra.Command {
	var register bool
	var name, phone string

	cmd := &cobra.Command{
		Use:   "login <email> <password>",
		Short: "Sign in (or register) and store the session locally",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			d, err := c.app.newDevice(ctx, c.app.db)
			if err != nil {
				return err
			}
			user, err := d.signIn(ctx, c.app.public, api.RegisterRequest{
				Name:     name,
				Email:    args[0],
				Password: args[1],
				Phone:    phone,
			}, register)
			if err != nil {
				return fmt.Errorf("sign in failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s (%s)\n", user.Email, user.ID)
			return nil
		},
	}

	cmd.Flags().BoolVar(&register, "register", false, "Create the account first")
	cmd.Flags().StringVar(&name, "name", "Khách hàng", "Display name for --register")
	cmd.Flags().StringVar(&phone, "phone", "", "Phone number for --register")

	return cmd
}

func (c *cli) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := c.app.newDevice(cmd.Context(), c.app.db)
			if err != nil {
				return err
			}
			return d.session.Logout(cmd.Context())
		},
	}
}

func (c *cli) checkoutCmd() *cobra.Command {
	var items []string
	var draft models.CheckoutDraft

	cmd := &cobra.Command{
		Use:   "checkout",
		Short: "Add items to the cart and check out",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			w := cmd.OutOrStdout()

			d, err := c.localDevice(ctx, w)
			if err != nil {
				return err
			}
			if !d.session.Authenticated() {
				return errors.New("not signed in, run login first")
			}

			for _, raw := range items {
				item, err := parseItem(raw)
				if err != nil {
					return err
				}
				if err := d.client.AddToCart(ctx, item.ProductID, item.Quantity); err != nil {
					return fmt.Errorf("failed to add %s: %w", item.ProductID, err)
				}
			}
			if err := d.syncCart(ctx); err != nil {
				return fmt.Errorf("failed to load cart: %w", err)
			}

			printResult(w, d.orchestrator.Checkout(ctx, draft))
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&items, "item", nil, "Item to add as productID[:quantity], repeatable")
	cmd.Flags().StringVar(&draft.PaymentMethod, "pay", models.PaymentVNPay, "Payment method (cod, vnpay)")
	cmd.Flags().StringVar(&draft.ShippingMethod, "ship", "standard", "Shipping method (standard, express)")
	cmd.Flags().StringVar(&draft.Customer.Name, "name", "", "Recipient name")
	cmd.Flags().StringVar(&draft.Customer.Phone, "phone", "", "Recipient phone")
	cmd.Flags().StringVar(&draft.Customer.Address, "address", "", "Shipping address")
	cmd.Flags().StringVar(&draft.Note, "note", "", "Order note")

	return cmd
}

func printResult(w io.Writer, res checkout.Result) {
	status := "FAILED"
	if res.Success {
		status = "SUCCESS"
	}
	fmt.Fprintf(w, "%s: %s\n", status, res.Message)
	if res.Kind != "" {
		fmt.Fprintf(w, "  kind:      %s (retryable: %t)\n", res.Kind, res.Retryable)
	}
	if res.Outcome != "" {
		fmt.Fprintf(w, "  outcome:   %s\n", res.Outcome)
	}
	if res.OrderID != "" {
		fmt.Fprintf(w, "  order:     %s\n", res.OrderID)
	}
	if res.TxnRef != "" {
		fmt.Fprintf(w, "  txn_ref:   %s\n", res.TxnRef)
	}
	if res.Totals.Total > 0 {
		fmt.Fprintf(w, "  total:     %d (subtotal %d, shipping %d)\n", res.Totals.Total, res.Totals.Subtotal, res.Totals.ShippingFee)
	}
	for _, it := range res.Items {
		fmt.Fprintf(w, "  item:      %s - %s\n", it.Name, it.Reason)
	}
	fmt.Fprintf(w, "  next:      %s\n", res.NextStep)
}

func (c *cli) ordersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "orders",
		Short: "Sync queued payments and list the signed-in user's orders",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			w := cmd.OutOrStdout()

			d, err := c.localDevice(ctx, w)
			if err != nil {
				return err
			}
			view, err := d.history.List(ctx)
			if err != nil {
				return err
			}

			table := NewTable(w, "Orders")
			table.AddColumn("Order ID", 38, AlignLeft)
			table.AddColumn("Payment", 9, AlignLeft)
			table.AddColumn("Status", 12, AlignLeft)
			table.AddColumn("Total", 10, AlignRight)
			table.AddColumn("Created At", 21, AlignLeft)
			table.PrintHeader()
			if len(view.Orders) == 0 {
				table.PrintEmptyRow("No orders yet")
			}
			for _, o := range view.Orders {
				table.PrintRow(o.ID, o.PaymentMethod, o.Status, o.Total, o.CreatedAt.Local().Format("2006-01-02 15:04:05"))
			}
			table.PrintFooter()

			if len(view.Pending) > 0 {
				printOfflineOrders(w, "Awaiting confirmation", view.Pending)
			}
			fmt.Fprintf(w, "Queue sync: processed %d, failed %d, total %d\n", view.Sync.Processed, view.Sync.Failed, view.Sync.Total)
			return nil
		},
	}
}

func printOfflineOrders(w io.Writer, title string, recs []models.OfflineOrder) {
	table := NewTable(w, title)
	table.AddColumn("ID", 38, AlignLeft)
	table.AddColumn("Txn Ref", 22, AlignLeft)
	table.AddColumn("Status", 17, AlignLeft)
	table.AddColumn("Attempts", 10, AlignRight)
	table.AddColumn("Last Error", 40, AlignLeft)
	table.PrintHeader()
	if len(recs) == 0 {
		table.PrintEmptyRow("No offline orders")
	}
	for _, rec := range recs {
		table.PrintRow(rec.ID, rec.CallbackParameters["vnp_TxnRef"], rec.Status, rec.Attempts, rec.LastError)
	}
	table.PrintFooter()
}

func (c *cli) cancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <orderID>",
		Short: "Cancel an order that has not shipped",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := c.app.newDevice(cmd.Context(), c.app.db)
			if err != nil {
				return err
			}
			printResult(cmd.OutOrStdout(), d.history.Cancel(cmd.Context(), args[0]))
			return nil
		},
	}
}

func (c *cli) queueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and drive the offline order queue",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Show queue counters",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := c.app.queue.Stats(cmd.Context())
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Total: %d, Pending: %d, Completed: %d, Expired: %d\n", s.Total, s.Pending, s.Completed, s.Expired)
			if s.LastProcessedAt != nil {
				fmt.Fprintf(w, "Last processed at: %s\n", s.LastProcessedAt.Local().Format(time.RFC3339))
			}
			pending, err := c.app.queue.Pending(cmd.Context())
			if err != nil {
				return err
			}
			printOfflineOrders(w, "Pending", pending)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "process",
		Short: "Retry every pending record once",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := c.app.queue.ProcessPending(cmd.Context())
			fmt.Fprintf(cmd.OutOrStdout(), "Processed: %d, Failed: %d, Total: %d\n", s.Processed, s.Failed, s.Total)
			return err
		},
	})

	var days int
	cleanup := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete finished records older than the retention window",
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := c.app.queue.CleanupOld(cmd.Context(), days)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d records\n", n)
			return nil
		},
	}
	cleanup.Flags().IntVar(&days, "days", 0, "Retention in days (default from OFFLINE_RETENTION_DAYS)")
	cmd.AddCommand(cleanup)

	cmd.AddCommand(&cobra.Command{
		Use:   "remove <id>",
		Short: "Delete one record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.app.queue.Remove(cmd.Context(), args[0])
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Delete every record",
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := c.app.queue.ClearAll(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d records\n", n)
			return nil
		},
	})

	return cmd
}

func (c *cli) eventsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "events",
		Short: "Print checkout and offline queue events from NATS until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			w := cmd.OutOrStdout()
			for _, subject := range []string{"checkout.>", "offline.>"} {
				sub, err := c.app.events.Subscribe(subject, func(ev events.Event) {
					fmt.Fprintf(w, "%s %-28s txn=%s order=%s code=%s %s\n",
						ev.At.Local().Format("15:04:05.000"), subject, ev.TxnRef, ev.OrderID, ev.ResponseCode, strings.TrimSpace(ev.Message))
				})
				if err != nil {
					return fmt.Errorf("failed to subscribe to %s: %w", subject, err)
				}
				defer sub.Unsubscribe()
			}

			fmt.Fprintln(w, "Listening for events, press Ctrl+C to stop")
			<-ctx.Done()
			return nil
		},
	}
}

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"storefront-checkout/pkg/api"
	"storefront-checkout/pkg/checkout"
	"storefront-checkout/pkg/database"
	"storefront-checkout/pkg/models"
	"storefront-checkout/pkg/utils"
)

type simResult struct {
	tally string
	line  string
}

func (c *cli) simulateCmd() *cobra.Command {
	var workers int
	var method string

	cmd := &cobra.Command{
		Use:   "simulate <count>",
		Short: "Run count checkouts, each as a fresh shopper on its own device",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			count, err := strconv.Atoi(args[0])
			if err != nil || count < 1 {
				return fmt.Errorf("invalid count: %s", args[0])
			}
			if workers < 1 {
				workers = 1
			}
			return c.runSimulator(cmd.Context(), cmd.OutOrStdout(), count, workers, method)
		},
	}

	cmd.Flags().IntVar(&workers, "workers", 4, "Concurrent shoppers")
	cmd.Flags().StringVar(&method, "pay", models.PaymentVNPay, "Payment method (cod, vnpay)")

	return cmd
}

func (c *cli) runSimulator(ctx context.Context, w io.Writer, count, workers int, method string) error {
	fmt.Fprintf(w, "Starting simulation with %d iterations using %d goroutines\n", count, workers)

	chunkSize := count / workers
	if count%workers != 0 {
		chunkSize++
	}

	var wg sync.WaitGroup
	results := make(chan simResult, count)

	for i := 0; i < workers; i++ {
		start := i * chunkSize
		end := min(start+chunkSize, count)
		if start >= end {
			break
		}

		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			for j := start; j < end; j++ {
				results <- c.runSimulationIteration(ctx, j+1, method)
			}
		}(start, end)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	tally := map[string]int{}
	for r := range results {
		tally[r.tally]++
		fmt.Fprintln(w, r.line)
	}

	keys := make([]string, 0, len(tally))
	for k := range tally {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %d", k, tally[k]))
	}
	fmt.Fprintf(w, "\nSimulation completed. %s\n", strings.Join(parts, ", "))

	summary, err := c.app.queue.ProcessPending(ctx)
	if err != nil {
		slog.Error("Offline queue pass failed", "error", err)
	}
	fmt.Fprintf(w, "Offline queue: processed %d, failed %d, pending before pass %d\n", summary.Processed, summary.Failed, summary.Total)

	c.printDuplicates(ctx, w)
	return nil
}

func (c *cli) runSimulationIteration(ctx context.Context, iteration int, method string) simResult {
	correlationID := utils.GenerateCorrelationID()
	logPrefix := utils.LogPrefix(correlationID)
	failed := func(step string, err error) simResult {
		slog.Error(logPrefix+"Simulation step failed", "iteration", iteration, "step", step, "error", err)
		return simResult{
			tally: "setup_failed",
			line:  fmt.Sprintf("Iteration %d [%s]: FAILED to %s - %v", iteration, correlationID, step, err),
		}
	}

	d, err := c.app.newDevice(ctx, database.NewMemoryStore())
	if err != nil {
		return failed("open device", err)
	}

	email := fmt.Sprintf("sim-%s-%d@example.com", strings.ToLower(correlationID), iteration)
	if _, err := d.signIn(ctx, c.app.public, api.RegisterRequest{Name: "Khách " + correlationID, Email: email, Password: "simulator"}, true); err != nil {
		return failed("register", err)
	}
	if err := d.client.AddToCart(ctx, "p1", 2); err != nil {
		return failed("add to cart", err)
	}
	if err := d.syncCart(ctx); err != nil {
		return failed("load cart", err)
	}

	slog.Info(logPrefix+"Shopper ready", "iteration", iteration, "email", email, "lines", d.cart.Count())

	res := d.orchestrator.Checkout(ctx, models.CheckoutDraft{
		Customer:       models.CustomerInfo{Name: "Khách " + correlationID, Phone: "0900000000", Address: "1 Tràng Tiền, Hà Nội"},
		PaymentMethod:  method,
		ShippingMethod: "standard",
	})
	return simResult{tally: tallyKey(res), line: fmt.Sprintf("Iteration %d [%s]: %s", iteration, correlationID, describe(res))}
}

func tallyKey(res checkout.Result) string {
	if res.Success {
		return string(res.Outcome)
	}
	return string(res.Kind)
}

func describe(res checkout.Result) string {
	if res.Success {
		return fmt.Sprintf("%s - Order: %s, Txn: %s, Amount: %d", strings.ToUpper(string(res.Outcome)), res.OrderID, res.TxnRef, res.Totals.Total)
	}
	return fmt.Sprintf("FAILED %s - %s", res.Kind, res.Message)
}

// printDuplicates asks the backend simulator which transactions produced
// more than one order.
func (c *cli) printDuplicates(ctx context.Context, w io.Writer) {
	var env struct {
		Data map[string]int `json:"data"`
	}
	if err := c.app.hc.DoJSON(ctx, http.MethodGet, "debug/duplicates", nil, nil, &env); err != nil {
		slog.Warn("Failed to fetch duplicate orders", "error", err)
		return
	}
	if len(env.Data) == 0 {
		fmt.Fprintln(w, "Duplicate orders: none")
		return
	}

	table := NewTable(w, "Duplicate orders")
	table.AddColumn("Txn Ref", 24, AlignLeft)
	table.AddColumn("Orders", 8, AlignRight)
	table.PrintHeader()
	refs := make([]string, 0, len(env.Data))
	for ref := range env.Data {
		refs = append(refs, ref)
	}
	sort.Strings(refs)
	for _, ref := range refs {
		table.PrintRow(ref, env.Data[ref])
	}
	table.PrintFooter()
}

// releasectl выдача отправления со счётом из командной строки.
//
//	releasectl -shipment S-1 -all -option DEBT
//	releasectl -resume <release id>
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/iurnickita/warehouse/internal/api"
	"github.com/iurnickita/warehouse/internal/client"
)

type options struct {
	addr      string
	token     string
	shipment  string
	all       bool
	boxes     string
	count     int
	charges   string
	option    string
	amount    string
	method    string
	collector string
	resume    string
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	_ = godotenv.Load()

	var opt options
	flag.StringVar(&opt.addr, "a", envOr("WAREHOUSE_ADDR", "localhost:8080"), "warehouse server address")
	flag.StringVar(&opt.token, "token", os.Getenv("WAREHOUSE_TOKEN"), "bearer token")
	flag.StringVar(&opt.shipment, "shipment", "", "shipment id")
	flag.BoolVar(&opt.all, "all", false, "release all boxes in storage")
	flag.StringVar(&opt.boxes, "boxes", "", "comma separated box numbers")
	flag.IntVar(&opt.count, "count", 0, "release the first N boxes")
	flag.StringVar(&opt.charges, "charges", "-", "comma separated charge type ids, - for auto-applied")
	flag.StringVar(&opt.option, "option", "", "payment option FULL, PARTIAL or DEBT; empty prints the draft only")
	flag.StringVar(&opt.amount, "amount", "0", "amount paid now")
	flag.StringVar(&opt.method, "method", "CASH", "payment method")
	flag.StringVar(&opt.collector, "collector", "", "collector ID")
	flag.StringVar(&opt.resume, "resume", "", "resume an interrupted release by id")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c := client.NewClient(opt.addr, opt.token)
	if opt.resume != "" {
		record, err := c.ResumeRelease(ctx, opt.resume)
		if err != nil {
			return err
		}
		return printJSON(record)
	}

	req, err := draftRequest(opt)
	if err != nil {
		return err
	}
	draft, err := c.DraftRelease(ctx, req)
	if err != nil {
		return err
	}
	if err = printJSON(draft); err != nil {
		return err
	}
	if opt.option == "" {
		return nil
	}

	amount, err := decimal.NewFromString(opt.amount)
	if err != nil {
		return fmt.Errorf("amount: %w", err)
	}
	record, err := c.ExecuteRelease(ctx, draft.ID, api.ReleaseDecisionJSONRequest{
		PaymentOption: strings.ToUpper(opt.option),
		Amount:        amount,
		PaymentMethod: opt.method,
		CollectorID:   opt.collector,
	})
	if err != nil {
		return fmt.Errorf("release %s: %w (resume with -resume %s)", draft.ID, err, draft.ID)
	}
	return printJSON(record)
}

func draftRequest(opt options) (api.ReleaseDraftJSONRequest, error) {
	req := api.ReleaseDraftJSONRequest{
		ShipmentID: opt.shipment,
		SelectionJSON: api.SelectionJSON{
			ReleaseAll: opt.all,
			Count:      opt.count,
		},
	}
	if opt.boxes != "" {
		for _, s := range strings.Split(opt.boxes, ",") {
			n, err := strconv.Atoi(strings.TrimSpace(s))
			if err != nil {
				return api.ReleaseDraftJSONRequest{}, fmt.Errorf("box number %q: %w", s, err)
			}
			req.BoxNumbers = append(req.BoxNumbers, n)
		}
	}
	if opt.charges != "-" {
		req.ChargeTypeIDs = []string{}
		for _, id := range strings.Split(opt.charges, ",") {
			if id = strings.TrimSpace(id); id != "" {
				req.ChargeTypeIDs = append(req.ChargeTypeIDs, id)
			}
		}
	}
	return req, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

package ingest

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/quantrail/signals/internal/contracts"
	"github.com/quantrail/signals/internal/formula"
	"github.com/quantrail/signals/pkg/httputil"
	"github.com/quantrail/signals/pkg/logger"
)

// CompanyStore is the company side of an ingest pass.
type CompanyStore interface {
	List(ctx context.Context) ([]*contracts.Company, error)
	SaveFinancials(ctx context.Context, ticker string, data contracts.FinancialData, marketCap string) error
}

// QuarterlyWriter persists scraped quarterly observations.
type QuarterlyWriter interface {
	Upsert(ctx context.Context, rows []contracts.QuarterRow) error
}

// Report is the parsed fundamentals page for one ticker.
type Report struct {
	Ticker    string
	Rows      []contracts.QuarterRow
	Snapshot  contracts.FinancialData
	MarketCap string
}

// Poller scrapes the fundamentals provider and writes quarterly series plus
// the flat metric snapshot. Each company write advances updated_at, which is
// what marks its signal stale.
type Poller struct {
	client    *httputil.Client
	baseURL   string
	companies CompanyStore
	quarterly QuarterlyWriter
	logger    *logger.Logger
}

func NewPoller(client *httputil.Client, baseURL string, companies CompanyStore, quarterly QuarterlyWriter, log *logger.Logger) *Poller {
	return &Poller{
		client:    client,
		baseURL:   strings.TrimRight(baseURL, "/"),
		companies: companies,
		quarterly: quarterly,
		logger:    log,
	}
}

// RunOnce refreshes every company. Per-company failures are logged and
// skipped; the pass always visits the full list.
func (p *Poller) RunOnce(ctx context.Context) error {
	companies, err := p.companies.List(ctx)
	if err != nil {
		return fmt.Errorf("list companies: %w", err)
	}

	var refreshed int
	for _, company := range companies {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := p.refreshCompany(ctx, company.Ticker); err != nil {
			p.logger.WithError(err).WithField("ticker", company.Ticker).Warn("Fundamentals refresh failed")
			continue
		}
		refreshed++
	}

	p.logger.WithFields(map[string]interface{}{
		"companies": len(companies),
		"refreshed": refreshed,
	}).Info("Fundamentals refresh completed")
	return nil
}

func (p *Poller) refreshCompany(ctx context.Context, ticker string) error {
	body, err := p.client.GetBody(ctx, fmt.Sprintf("%s/fundamentals/%s", p.baseURL, ticker))
	if err != nil {
		return fmt.Errorf("fetch fundamentals: %w", err)
	}

	report, err := ParseFundamentals(ticker, body)
	if err != nil {
		return fmt.Errorf("parse fundamentals: %w", err)
	}

	if len(report.Rows) > 0 {
		if err := p.quarterly.Upsert(ctx, report.Rows); err != nil {
			return fmt.Errorf("save quarterly rows: %w", err)
		}
	}
	if err := p.companies.SaveFinancials(ctx, ticker, report.Snapshot, report.MarketCap); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// ParseFundamentals extracts the summary snapshot and the quarterly table
// from a fundamentals page. The summary table holds metric/value pairs; the
// quarterly table has a header row of quarter labels, newest first.
func ParseFundamentals(ticker string, html []byte) (*Report, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}

	report := &Report{
		Ticker:   ticker,
		Snapshot: make(contracts.FinancialData),
	}

	doc.Find("table.summary tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < 2 {
			return
		}
		label := strings.TrimSpace(cells.Eq(0).Text())
		raw := strings.TrimSpace(cells.Eq(1).Text())

		metric, err := formula.ResolveField(label)
		if err != nil {
			return
		}
		if metric == contracts.MetricMarketCap {
			report.MarketCap = cleanNumber(raw)
			return
		}
		if v, ok := parseNumber(raw); ok {
			report.Snapshot[metric] = v
		}
	})

	var quarters []string
	doc.Find("table.quarterly thead th").Each(func(i int, cell *goquery.Selection) {
		if i == 0 {
			return // metric name column
		}
		quarters = append(quarters, strings.TrimSpace(cell.Text()))
	})

	doc.Find("table.quarterly tbody tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < 2 {
			return
		}
		metric := strings.TrimSpace(cells.Eq(0).Text())
		if metric == "" {
			return
		}
		for i := 1; i < cells.Length() && i-1 < len(quarters); i++ {
			raw := strings.TrimSpace(cells.Eq(i).Text())
			v, ok := parseNumber(raw)
			if !ok {
				continue // unreported quarter stays absent
			}
			report.Rows = append(report.Rows, contracts.QuarterRow{
				Ticker:  ticker,
				Quarter: quarters[i-1],
				Metric:  metric,
				Value:   v,
			})
		}
	})

	if len(report.Rows) == 0 && len(report.Snapshot) == 0 && report.MarketCap == "" {
		return nil, fmt.Errorf("no fundamentals data found for %s", ticker)
	}
	return report, nil
}

func cleanNumber(raw string) string {
	raw = strings.ReplaceAll(raw, ",", "")
	raw = strings.TrimSuffix(raw, "%")
	return strings.TrimSpace(raw)
}

func parseNumber(raw string) (float64, bool) {
	cleaned := cleanNumber(raw)
	if cleaned == "" || cleaned == "-" || strings.EqualFold(cleaned, "n/a") {
		return 0, false
	}
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

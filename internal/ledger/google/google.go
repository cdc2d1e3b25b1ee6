// Package google mirrors the ledger into a Google Sheets tab.
package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"voicespese/internal/ledger"
	"voicespese/internal/log"
)

// Columns: A id, B created_at, C user, D category, E amount, F description, G status.
var header = []any{"id", "created_at", "user", "category", "amount", "description", "status"}

type Config struct {
	SpreadsheetID      string
	SheetName          string
	ServiceAccountJSON string
	ServiceAccountFile string
}

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheet         string
	logger        *slog.Logger
}

var _ ledger.Writer = (*Client)(nil)

// New authenticates with service account credentials. Extra options are
// appended after the credentials, so tests can point the client elsewhere.
func New(ctx context.Context, cfg Config, opts ...goption.ClientOption) (*Client, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	if cfg.SheetName == "" {
		cfg.SheetName = "Expenses"
	}

	if len(opts) == 0 {
		creds, err := credentials(cfg)
		if err != nil {
			return nil, err
		}
		opts = []goption.ClientOption{
			goption.WithCredentialsJSON(creds),
			goption.WithScopes(gsheet.SpreadsheetsScope),
		}
	}

	svc, err := gsheet.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return &Client{
		svc:           svc,
		spreadsheetID: cfg.SpreadsheetID,
		sheet:         cfg.SheetName,
		logger:        log.WithComponent(log.ComponentLedger),
	}, nil
}

func credentials(cfg Config) ([]byte, error) {
	switch {
	case cfg.ServiceAccountJSON != "":
		return []byte(cfg.ServiceAccountJSON), nil
	case cfg.ServiceAccountFile != "":
		b, err := os.ReadFile(cfg.ServiceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return b, nil
	default:
		return nil, errors.New("missing service account credentials")
	}
}

// Upsert rewrites the row whose id column matches, or appends a new one.
// A header row is written to an empty sheet first.
func (c *Client) Upsert(ctx context.Context, row ledger.Row) (string, error) {
	ids, err := c.idColumn(ctx)
	if err != nil {
		return "", err
	}
	values := [][]any{rowValues(row)}

	if n := findRow(ids, row.ID); n > 0 {
		rng := fmt.Sprintf("%s!A%d:G%d", c.sheet, n, n)
		_, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, &gsheet.ValueRange{Values: values}).
			ValueInputOption("USER_ENTERED").Context(ctx).Do()
		if err != nil {
			return "", fmt.Errorf("update %s: %w", rng, err)
		}
		c.logger.DebugContext(ctx, "Ledger row updated", log.FieldExpenseID, row.ID, "range", rng)
		return rng, nil
	}

	if len(ids) == 0 {
		values = append([][]any{header}, values...)
	}
	resp, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, c.sheet+"!A:G", &gsheet.ValueRange{Values: values}).
		ValueInputOption("USER_ENTERED").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("append to %s: %w", c.sheet, err)
	}
	ref := c.sheet
	if resp.Updates != nil && resp.Updates.UpdatedRange != "" {
		ref = resp.Updates.UpdatedRange
	}
	c.logger.DebugContext(ctx, "Ledger row appended", log.FieldExpenseID, row.ID, "range", ref)
	return ref, nil
}

func (c *Client) idColumn(ctx context.Context) ([]string, error) {
	rng := c.sheet + "!A:A"
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	out := make([]string, len(resp.Values))
	for i, r := range resp.Values {
		if len(r) > 0 {
			out[i] = strings.TrimSpace(fmt.Sprint(r[0]))
		}
	}
	return out, nil
}

// findRow returns the 1-based sheet row holding id, or 0.
func findRow(ids []string, id int64) int {
	want := strconv.FormatInt(id, 10)
	for i, v := range ids {
		if v == want {
			return i + 1
		}
	}
	return 0
}

func rowValues(r ledger.Row) []any {
	return []any{
		r.ID,
		r.CreatedAt.UTC().Format(time.RFC3339),
		r.UserID,
		string(r.Category),
		r.Amount.String(),
		r.Description,
		string(r.Status),
	}
}

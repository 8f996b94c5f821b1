package cmd

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/iksnae/analyst-stream/internal"
	"github.com/spf13/cobra"
)

var (
	inspectFormat       string
	inspectSampleRows   int
	inspectConversation string
)

// inspectCmd represents the inspect command
var inspectCmd = &cobra.Command{
	Use:   "inspect [database-path]",
	Short: "Inspect the event database",
	Long: `Inspect the schema and contents of an event database without modifying it.

This command shows:
  • Tables with row counts and columns
  • Sample rows, with event payloads pretty-printed
  • Event type counts for one conversation (--conversation)

Examples:
  analyst-stream inspect                              # Inspect the configured database
  analyst-stream inspect /path/to/analyst-stream.db   # Inspect a specific database
  analyst-stream inspect --format json --sample 5     # JSON output with 5 sample rows`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := cfg.Database
		if len(args) > 0 {
			path = args[0]
		}

		db, err := internal.OpenDatabaseReadOnly(path)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer func() { _ = db.Close() }()

		if inspectConversation != "" {
			return inspectEvents(cmd, db, path)
		}

		report, err := buildReport(db, path, inspectSampleRows)
		if err != nil {
			return err
		}
		if inspectFormat == "json" {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		}
		printReport(cmd.OutOrStdout(), report)
		return nil
	},
}

// ColumnInfo describes one table column
type ColumnInfo struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	NotNull    bool   `json:"notNull"`
	PrimaryKey bool   `json:"primaryKey"`
}

type tableReport struct {
	Name    string           `json:"name"`
	Rows    int64            `json:"rows"`
	Columns []ColumnInfo     `json:"columns"`
	Samples []map[string]any `json:"samples,omitempty"`
}

type databaseReport struct {
	Path          string        `json:"path"`
	SchemaVersion int           `json:"schemaVersion"`
	Tables        []tableReport `json:"tables"`
}

func buildReport(db *sql.DB, path string, samples int) (*databaseReport, error) {
	report := &databaseReport{Path: path}
	if v, err := internal.CurrentSchemaVersion(db); err == nil {
		report.SchemaVersion = v
	}

	tables, err := internal.ListTables(db)
	if err != nil {
		return nil, fmt.Errorf("failed to get tables: %w", err)
	}
	for _, t := range tables {
		tr := tableReport{Name: t.Name, Rows: t.Rows}
		cols, err := getTableSchema(db, t.Name)
		if err != nil {
			internal.LogWarn("Failed to read schema of %s: %v", t.Name, err)
			continue
		}
		tr.Columns = cols
		if t.Rows > 0 && samples > 0 {
			rows, err := sampleRows(db, t.Name, cols, samples)
			if err != nil {
				internal.LogWarn("Failed to sample %s: %v", t.Name, err)
			}
			tr.Samples = rows
		}
		report.Tables = append(report.Tables, tr)
	}
	return report, nil
}

func getTableSchema(db *sql.DB, tableName string) ([]ColumnInfo, error) {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%q)", tableName))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var columns []ColumnInfo
	for rows.Next() {
		var col ColumnInfo
		var cid int
		var notNull, pk int
		var defaultValue sql.NullString

		if err := rows.Scan(&cid, &col.Name, &col.Type, &notNull, &defaultValue, &pk); err != nil {
			continue
		}
		col.NotNull = notNull == 1
		col.PrimaryKey = pk > 0
		columns = append(columns, col)
	}
	return columns, rows.Err()
}

func sampleRows(db *sql.DB, tableName string, columns []ColumnInfo, limit int) ([]map[string]any, error) {
	names := make([]string, len(columns))
	for i, c := range columns {
		names[i] = fmt.Sprintf("%q", c.Name)
	}
	rows, err := db.Query(fmt.Sprintf("SELECT %s FROM %q LIMIT %d", strings.Join(names, ", "), tableName, limit))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []map[string]any
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return out, err
		}
		row := make(map[string]any, len(columns))
		for i, c := range columns {
			row[c.Name] = sampleValue(c.Name, values[i])
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// sampleValue decodes event payloads so they print as JSON rather than as a quoted string
func sampleValue(column string, v any) any {
	if b, ok := v.([]byte); ok {
		v = string(b)
	}
	s, ok := v.(string)
	if !ok {
		return v
	}
	if column == "payload" && json.Valid([]byte(s)) {
		return json.RawMessage(s)
	}
	if len(s) > 200 {
		return s[:197] + "..."
	}
	return s
}

func printReport(out io.Writer, report *databaseReport) {
	fmt.Fprintf(out, "📋 Database: %s\n", report.Path)
	fmt.Fprintf(out, "🔢 Schema version: %d (latest %d)\n", report.SchemaVersion, internal.SchemaVersion())
	fmt.Fprintf(out, "📊 Found %d table(s)\n\n", len(report.Tables))

	for _, t := range report.Tables {
		fmt.Fprintf(out, "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
		fmt.Fprintf(out, "📦 Table: %s\n", t.Name)
		fmt.Fprintf(out, "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
		fmt.Fprintf(out, "📊 Rows: %d\n\n", t.Rows)

		fmt.Fprintf(out, "📐 Schema:\n")
		for _, col := range t.Columns {
			pk := ""
			if col.PrimaryKey {
				pk = " [PRIMARY KEY]"
			}
			notNull := ""
			if col.NotNull {
				notNull = " NOT NULL"
			}
			fmt.Fprintf(out, "  • %s: %s%s%s\n", col.Name, col.Type, notNull, pk)
		}

		if len(t.Samples) > 0 {
			fmt.Fprintf(out, "\n🔍 Sample rows:\n")
			for i, row := range t.Samples {
				fmt.Fprintf(out, "  [%d]\n", i+1)
				for _, col := range t.Columns {
					fmt.Fprintf(out, "    %s: %s\n", col.Name, formatSample(row[col.Name]))
				}
			}
		}
		fmt.Fprintln(out)
	}
}

func formatSample(v any) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case json.RawMessage:
		return string(val)
	default:
		return fmt.Sprint(val)
	}
}

func inspectEvents(cmd *cobra.Command, db *sql.DB, path string) error {
	store := internal.NewEventStore(db, path)
	rec, err := store.FindConversation(cmd.Context(), inspectConversation)
	if err != nil {
		return err
	}
	counts, err := store.EventTypeCounts(cmd.Context(), rec.ID)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if inspectFormat == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{"conversation": rec, "eventTypes": counts})
	}

	fmt.Fprintf(out, "💬 %s %s\n", rec.ID, rec.Title)
	fmt.Fprintf(out, "📊 Events: %d\n\n", rec.EventCount)
	types := make([]string, 0, len(counts))
	for t := range counts {
		types = append(types, string(t))
	}
	sort.Strings(types)
	for _, t := range types {
		fmt.Fprintf(out, "  • %-24s %d\n", t, counts[internal.EventType(t)])
	}
	return nil
}

func init() {
	rootCmd.AddCommand(inspectCmd)
	inspectCmd.Flags().StringVarP(&inspectFormat, "format", "f", "text", "Output format (text, json)")
	inspectCmd.Flags().IntVarP(&inspectSampleRows, "sample", "s", 3, "Number of sample rows to show per table")
	inspectCmd.Flags().StringVarP(&inspectConversation, "conversation", "c", "", "Show event type counts for one conversation")
}

//go:build integration

package integration

import (
	"fmt"
	"os"
	"testing"

	"github.com/brcamerge/brcamerge/internal/table"
)

func pgConnString(t *testing.T) string {
	t.Helper()
	host := envOrDefault("BRCAMERGE_TEST_PG_HOST", "localhost")
	port := envOrDefault("BRCAMERGE_TEST_PG_PORT", "25432")
	db := envOrDefault("BRCAMERGE_TEST_PG_DATABASE", "brcamerge_test")
	user := envOrDefault("BRCAMERGE_TEST_PG_USER", "postgres")
	pass := envOrDefault("BRCAMERGE_TEST_PG_PASSWORD", "postgres")
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", user, pass, host, port, db)
}

func mongoURI(t *testing.T) string {
	t.Helper()
	return envOrDefault("BRCAMERGE_TEST_MONGO_URI", "mongodb://localhost:37017/?directConnection=true")
}

func mongoDatabase(t *testing.T) string {
	t.Helper()
	return envOrDefault("BRCAMERGE_TEST_MONGO_DATABASE", "brcamerge_test")
}

func skipIfNoPostgres(t *testing.T) {
	t.Helper()
	if os.Getenv("BRCAMERGE_TEST_PG_HOST") == "" && os.Getenv("BRCAMERGE_TEST_PG_PORT") == "" {
		t.Skip("skipping: BRCAMERGE_TEST_PG_HOST/PORT not set")
	}
}

func skipIfNoMongo(t *testing.T) {
	t.Helper()
	if os.Getenv("BRCAMERGE_TEST_MONGO_URI") == "" {
		t.Skip("skipping: BRCAMERGE_TEST_MONGO_URI not set")
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// unifiedFixture is a small unified table with one absent cell per source.
func unifiedFixture(t *testing.T) *table.Table {
	t.Helper()
	tbl := table.MustNew("unified", []string{"id_paciente", "overall_survival", "er_status", table.SourceColumn})
	rows := [][]table.Value{
		{table.Str("MB-0001"), table.Num(4276.82), table.Str("positive"), table.Str("METABRIC")},
		{table.Str("MB-0002"), table.Absent(), table.Str("negative"), table.Str("METABRIC")},
		{table.Str("GSM1"), table.Num(1899.3), table.Absent(), table.Str("SCANB")},
		{table.Str("TCGA-A1"), table.Num(812), table.Str("positive"), table.Str("TCGA")},
	}
	for _, r := range rows {
		if err := tbl.Append(r); err != nil {
			t.Fatal(err)
		}
	}
	return tbl
}

package internal

import (
	"strings"
	"testing"

	"github.com/lychee-technology/shardquery"
)

func testAnalysisConfig() QueryAnalysisConfig {
	return QueryAnalysisConfig{
		MaxSQLLength:          100_000,
		AggMemoryThreshold:    50_000,
		AggStreamingThreshold: 100_000,
		CardinalityCap:        10_000_000,
	}
}

func TestAnalyseQueryRawWithKeysetID(t *testing.T) {
	sql := `SELECT i.id AS id_infraccion, i.serie_equipo, i.fecha_infraccion, i.monto_multa
	        FROM infracciones i
	        WHERE i.fecha_infraccion >= :dateFrom AND i.id_estado = ANY(:state)`
	md, err := AnalyseQuery(sql, testAnalysisConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if md.PaginationStrategy != shardquery.PaginationKeysetWithID {
		t.Errorf("expected KEYSET_WITH_ID, got %s", md.PaginationStrategy)
	}
	if md.IDColumn != "id_infraccion" {
		t.Errorf("expected id_infraccion, got %q", md.IDColumn)
	}
	if !md.Consolidable {
		t.Error("expected consolidable due to monto_multa numeric field")
	}
	if _, ok := md.FilterSchema["i.fecha_infraccion"]; !ok {
		t.Errorf("expected a filter spec for i.fecha_infraccion, got %+v", md.FilterSchema)
	}
}

func TestAnalyseQueryGroupedAggregate(t *testing.T) {
	sql := `SELECT i.provincia, COUNT(*) AS total FROM infracciones i GROUP BY i.provincia`
	md, err := AnalyseQuery(sql, testAnalysisConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if md.PaginationStrategy != shardquery.PaginationNone {
		t.Errorf("expected NO_PAGINATION, got %s", md.PaginationStrategy)
	}
	if md.ConsolidationKind != shardquery.ConsolidationAggregation {
		t.Errorf("expected AGGREGATION, got %s", md.ConsolidationKind)
	}
}

func TestAnalyseQueryRejectsOversizedSQL(t *testing.T) {
	cfg := testAnalysisConfig()
	cfg.MaxSQLLength = 10
	_, err := AnalyseQuery("SELECT * FROM infracciones WHERE id = 1", cfg)
	if err == nil {
		t.Fatal("expected an error for oversized SQL")
	}
	if !shardquery.IsInvalidInputError(err) {
		t.Errorf("expected an InvalidInput error, got %v", err)
	}
}

func TestAnalyseQueryRejectsEmptySQL(t *testing.T) {
	_, err := AnalyseQuery("   ", testAnalysisConfig())
	if err == nil {
		t.Fatal("expected an error for empty SQL")
	}
	if !shardquery.IsInvalidInputError(err) {
		t.Errorf("expected an InvalidInput error, got %v", err)
	}
}

func TestAnalyseQueryRejectsSQLMissingSelectFrom(t *testing.T) {
	_, err := AnalyseQuery("UPDATE infracciones SET monto_multa = 0", testAnalysisConfig())
	if err == nil {
		t.Fatal("expected an error for SQL without SELECT ... FROM")
	}
	if !shardquery.IsInvalidInputError(err) {
		t.Errorf("expected an InvalidInput error, got %v", err)
	}
}

func TestAnalyseQueryHandlesExistsSubquery(t *testing.T) {
	sql := `SELECT i.id FROM infracciones i WHERE EXISTS (SELECT 1 FROM concesiones c WHERE c.id = i.id_concesion)`
	md, err := AnalyseQuery(sql, testAnalysisConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(md.IDColumn, "id") {
		t.Errorf("expected an id column, got %q", md.IDColumn)
	}
}

package internal

import (
	"testing"

	"github.com/lychee-technology/shardquery"
)

func TestDetectDateFilter(t *testing.T) {
	specs := DetectFilters("i.fecha_infraccion >= :dateFrom AND i.fecha_infraccion <= :dateTo")
	var found bool
	for _, s := range specs {
		if s.Kind == shardquery.FilterDateRange {
			found = true
			if s.Label != "Fecha de Infraccion" {
				t.Errorf("expected label 'Fecha de Infraccion', got %q", s.Label)
			}
		}
	}
	if !found {
		t.Error("expected a DATE_RANGE filter to be detected")
	}
}

func TestDetectArrayFilterPriority(t *testing.T) {
	specs := DetectFilters("i.id_estado = ANY(:state) AND i.id_tipo_infra IN (1,2,3) AND i.id_concesion = 340")
	byColumn := map[string]shardquery.FilterSpec{}
	for _, s := range specs {
		if s.Kind == shardquery.FilterArrayInteger {
			byColumn[s.SQLColumn] = s
		}
	}

	if spec, ok := byColumn["i.id_estado"]; !ok || spec.HardCoded {
		t.Errorf("expected id_estado to be detected as dynamic ANY(), got %+v ok=%v", spec, ok)
	}
	if spec, ok := byColumn["i.id_tipo_infra"]; !ok || spec.HardCoded {
		t.Errorf("expected id_tipo_infra to be detected as dynamic IN(), got %+v ok=%v", spec, ok)
	}
	if spec, ok := byColumn["i.id_concesion"]; !ok || !spec.HardCoded {
		t.Errorf("expected id_concesion to be detected as hard-coded literal, got %+v ok=%v", spec, ok)
	}
}

func TestDetectBooleanFilter(t *testing.T) {
	specs := DetectFilters("i.exporta_sacit = true")
	var found bool
	for _, s := range specs {
		if s.Kind == shardquery.FilterBoolean {
			found = true
			if len(s.Options) != 2 {
				t.Errorf("expected 2 options, got %v", s.Options)
			}
		}
	}
	if !found {
		t.Error("expected a BOOLEAN filter to be detected")
	}
}

func TestTitleCaseLabelStripsPrefix(t *testing.T) {
	if got := titleCaseLabel("id_estado"); got != "Estado" {
		t.Errorf("expected 'Estado', got %q", got)
	}
	if got := titleCaseLabel("cod_provincia"); got != "Provincia" {
		t.Errorf("expected 'Provincia', got %q", got)
	}
}

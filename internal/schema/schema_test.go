package schema

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/csv-extractor/internal/model"
)

func TestReadColumns(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []model.Column
	}{
		{
			name:  "known columns",
			input: "CustCode,KT,CastBal\nC001,18,4\n",
			want: []model.Column{
				{Name: "CustCode", Description: "Unique customer code"},
				{Name: "KT", Description: "Metal purity or karat value"},
				{Name: "CastBal", Description: "Casting balance quantity"},
			},
		},
		{
			name:  "unknown column has empty description",
			input: "Factory,Remarks\n",
			want: []model.Column{
				{Name: "Factory", Description: "Factory or manufacturing unit identifier"},
				{Name: "Remarks", Description: ""},
			},
		},
		{
			name:  "quoted names and surrounding spaces",
			input: "\"SO Description\", Set Type \n",
			want: []model.Column{
				{Name: "SO Description", Description: "Sales order description or item description"},
				{Name: "Set Type", Description: "Set type classification (e.g., MS, WS)"},
			},
		},
		{
			name:  "byte order mark stripped",
			input: "\uFEFFMS Qty,WS Qty\n",
			want: []model.Column{
				{Name: "MS Qty", Description: "Quantity of MS (Main Stone) items"},
				{Name: "WS Qty", Description: "Quantity of WS (Working Stone) items"},
			},
		},
		{
			name:  "empty file",
			input: "",
			want:  []model.Column{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ReadColumns(strings.NewReader(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReaderColumns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "source.csv")
	require.NoError(t, os.WriteFile(path, []byte("Dsg Ctg,Prod Ctg\nRing,Gold\n"), 0o644))

	cols, err := NewReader(path).Columns()
	require.NoError(t, err)
	require.Len(t, cols, 2)
	assert.Equal(t, "Dsg Ctg", cols[0].Name)
	assert.Equal(t, "Product category or product line", cols[1].Description)
}

func TestReaderColumns_MissingFile(t *testing.T) {
	_, err := NewReader(filepath.Join(t.TempDir(), "nope.csv")).Columns()
	assert.Error(t, err)
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "Balance quantity pending manufacturing", Describe("BalToMfg"))
	assert.Empty(t, Describe("balToMfg"))
}

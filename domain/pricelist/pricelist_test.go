package pricelist

import "testing"

func TestRowValidate(t *testing.T) {
	tests := []struct {
		name    string
		row     Row
		wantErr bool
	}{
		{"valid", NewRow("", "Цемент М500", "кг", 450, ""), false},
		{"missing name", NewRow("", "", "кг", 450, ""), true},
		{"missing unit", NewRow("", "Цемент М500", "", 450, ""), true},
		{"zero price accepted", NewRow("", "Цемент М500", "кг", 0, ""), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.row.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestPriceListRowsDefensive(t *testing.T) {
	rows := []Row{NewRow("", "Песок", "м3", 1200, "")}
	p := New("sup-1", "pl-1", rows, FormatCSV)
	got := p.Rows()
	got[0] = Row{}
	if p.Rows()[0].RawName() != "Песок" {
		t.Fatal("Rows() must return a copy")
	}
}

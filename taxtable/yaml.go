package taxtable

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/warp/payroll-engine/payroll"
)

// File models the on-disk tax table schema. Amounts are strings so they
// parse straight into decimals without a float round trip.
//
//	tables:
//	  - year: 2025
//	    social_security: {rate: "0.062", wage_base: "176100"}
//	    medicare: {rate: "0.0145", surtax_rate: "0.009", surtax_threshold: "200000"}
//	    allowance_amount: "4300"
//	    standard_deduction: {single: "15000", married: "30000", head_of_household: "22500"}
//	    brackets:
//	      single: [{floor: "0", rate: "0.10"}, ...]
//	    state: {default_rate: "0.05", rates: {TX: "0"}}
type File struct {
	Tables []fileTable `yaml:"tables"`
}

type fileTable struct {
	Year           int `yaml:"year"`
	SocialSecurity struct {
		Rate     string `yaml:"rate"`
		WageBase string `yaml:"wage_base"`
	} `yaml:"social_security"`
	Medicare struct {
		Rate            string `yaml:"rate"`
		SurtaxRate      string `yaml:"surtax_rate"`
		SurtaxThreshold string `yaml:"surtax_threshold"`
	} `yaml:"medicare"`
	AllowanceAmount   string                   `yaml:"allowance_amount"`
	StandardDeduction map[string]string        `yaml:"standard_deduction"`
	Brackets          map[string][]fileBracket `yaml:"brackets"`
	State             struct {
		DefaultRate string            `yaml:"default_rate"`
		Rates       map[string]string `yaml:"rates,omitempty"`
	} `yaml:"state"`
}

type fileBracket struct {
	Floor string `yaml:"floor"`
	Rate  string `yaml:"rate"`
}

// LoadFile reads tables from a YAML file.
func LoadFile(path string) ([]Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open tax tables: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads and validates tables from YAML.
func Parse(r io.Reader) ([]Table, error) {
	var file File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("parse tax tables: %w", err)
	}

	tables := make([]Table, 0, len(file.Tables))
	for _, ft := range file.Tables {
		t, err := ft.toTable()
		if err != nil {
			return nil, err
		}
		if err := t.Validate(); err != nil {
			return nil, err
		}
		tables = append(tables, t)
	}
	return tables, nil
}

// LoadFile merges the tables in path into the registry.
func (r *Registry) LoadFile(path string) error {
	tables, err := LoadFile(path)
	if err != nil {
		return err
	}
	for _, t := range tables {
		if err := r.Register(t); err != nil {
			return err
		}
	}
	return nil
}

// fieldParser collects the first parse failure so conversion reads linearly.
type fieldParser struct {
	year int
	err  error
}

func (p *fieldParser) dec(field, s string) decimal.Decimal {
	if p.err != nil {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		p.err = fmt.Errorf("tax table %d: %s: invalid amount %q", p.year, field, s)
		return decimal.Zero
	}
	return d
}

func (ft fileTable) toTable() (Table, error) {
	p := &fieldParser{year: ft.Year}
	t := Table{
		Year:                    ft.Year,
		SSRate:                  p.dec("social_security.rate", ft.SocialSecurity.Rate),
		SSWageBase:              p.dec("social_security.wage_base", ft.SocialSecurity.WageBase),
		MedicareRate:            p.dec("medicare.rate", ft.Medicare.Rate),
		MedicareSurtaxRate:      p.dec("medicare.surtax_rate", ft.Medicare.SurtaxRate),
		MedicareSurtaxThreshold: p.dec("medicare.surtax_threshold", ft.Medicare.SurtaxThreshold),
		AllowanceAmount:         p.dec("allowance_amount", ft.AllowanceAmount),
		DefaultStateRate:        p.dec("state.default_rate", ft.State.DefaultRate),
		StandardDeduction:       make(map[payroll.FilingStatus]decimal.Decimal),
		Brackets:                make(map[payroll.FilingStatus][]Bracket),
		StateRates:              make(map[string]decimal.Decimal),
	}

	for name, amount := range ft.StandardDeduction {
		fs, err := payroll.ParseFilingStatus(name)
		if err != nil {
			return Table{}, fmt.Errorf("tax table %d: standard_deduction: %w", ft.Year, err)
		}
		t.StandardDeduction[fs] = p.dec("standard_deduction."+name, amount)
	}
	for name, bs := range ft.Brackets {
		fs, err := payroll.ParseFilingStatus(name)
		if err != nil {
			return Table{}, fmt.Errorf("tax table %d: brackets: %w", ft.Year, err)
		}
		for i, b := range bs {
			field := fmt.Sprintf("brackets.%s[%d]", name, i)
			t.Brackets[fs] = append(t.Brackets[fs], Bracket{
				Floor: p.dec(field+".floor", b.Floor),
				Rate:  p.dec(field+".rate", b.Rate),
			})
		}
	}
	for code, rate := range ft.State.Rates {
		t.StateRates[strings.ToUpper(code)] = p.dec("state.rates."+code, rate)
	}

	if p.err != nil {
		return Table{}, p.err
	}
	return t, nil
}

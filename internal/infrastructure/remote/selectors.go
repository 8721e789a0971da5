package remote

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kirillkom/tombamento-bot/internal/infrastructure/remote/locator"
)

const (
	DefaultBaseURL   = "https://sisgepat.fazenda.df.gov.br/"
	DefaultTargetURL = "https://sisgepat.fazenda.df.gov.br/SIGGO/SISGEPAT/Paginas/070_Dados_Gerais/FrmDGComplementar.aspx"

	formPrefix      = "ctl00_ctl00_ctl00_CphBody_CphFormulario_"
	inclusionPrefix = formPrefix + "CphFormularioInclusaoAlteracao_"
)

// Control is one page element with its lookup strategies in priority
// order and the interaction modes to try once it is found.
type Control struct {
	Locators []locator.Locator `yaml:"locators"`
	Modes    []Mode            `yaml:"modes,omitempty"`
}

// Selectors lists every control the session touches. The remote ids are
// generated by ASP.NET and shift between deployments, so all of them can
// be replaced from a YAML file.
type Selectors struct {
	Login       Control `yaml:"login"`
	Password    Control `yaml:"password"`
	LoginSubmit Control `yaml:"login_submit"`
	Module      Control `yaml:"module"`
	AddNew      Control `yaml:"add_new"`
	ItemInput   Control `yaml:"item_input"`
	ItemAppend  Control `yaml:"item_append"`
	Save        Control `yaml:"save"`
	Confirm     Control `yaml:"confirm"`
}

var clickModes = []Mode{ModeDirect, ModeScript}

func DefaultSelectors() Selectors {
	return Selectors{
		Login: Control{Locators: []locator.Locator{
			locator.Name("TxtLogin"),
			locator.ID("TxtLogin"),
		}},
		Password: Control{Locators: []locator.Locator{
			locator.CSS("input[name='TxtSenha'][type='password']"),
			locator.Name("TxtSenha"),
			locator.CSS("input[type='password'].grid_100"),
		}},
		LoginSubmit: Control{
			Locators: []locator.Locator{locator.ID("BtnEnviar"), locator.CSS("input[type='submit']")},
			Modes:    []Mode{ModeScript, ModeDirect},
		},
		Module: Control{
			Locators: []locator.Locator{
				locator.XPath("//span[contains(text(), 'PAT')]"),
				locator.CSS(".mouseHover.text"),
				locator.CSS("a#ct100_CphBody_RptModulos_ct100_RptSistemas_ct100_lnkModulo .spanText"),
			},
			Modes: []Mode{ModeDirect, ModeScript, ModeScriptParent},
		},
		AddNew: Control{
			Locators: []locator.Locator{
				locator.XPath("//input[@type='submit' and contains(@value, 'Adicionar')]"),
				locator.CSS("input[id$='BtnAdicionar']"),
				locator.ID(formPrefix + "BtnAdicionar"),
			},
			Modes: clickModes,
		},
		ItemInput: Control{Locators: []locator.Locator{
			locator.XPath("//input[@type='text' and contains(@id, 'TxtTombamento')]"),
			locator.CSS("input[id$='TxtTombamento']"),
			locator.ID(inclusionPrefix + "TxtTombamento"),
		}},
		ItemAppend: Control{
			Locators: []locator.Locator{
				locator.XPath("//input[contains(@id, 'BtnFRecursoAdd')]"),
				locator.CSS("input[id$='BtnFRecursoAdd']"),
				locator.ID(inclusionPrefix + "BtnFRecursoAdd"),
			},
			Modes: clickModes,
		},
		Save: Control{
			Locators: []locator.Locator{
				locator.XPath("//input[@type='submit' and contains(@value, 'Salvar')]"),
				locator.CSS("input[id$='BtnSalvar']"),
				locator.ID(formPrefix + "BtnSalvar"),
			},
			Modes: clickModes,
		},
		Confirm: Control{
			Locators: []locator.Locator{
				locator.XPath("//button[normalize-space(text())='OK' or normalize-space(text())='Sim']"),
				locator.CSS(".modal-footer #btnModalOk"),
				locator.ID("btnModalOk"),
			},
			Modes: clickModes,
		},
	}
}

// LoadSelectors overlays the controls defined in a YAML file on the
// defaults. Controls missing from the file keep their defaults.
func LoadSelectors(path string) (Selectors, error) {
	sel := DefaultSelectors()
	if path == "" {
		return sel, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Selectors{}, fmt.Errorf("read selectors: %w", err)
	}

	var overlay Selectors
	if err := yaml.Unmarshal(raw, &overlay); err != nil {
		return Selectors{}, fmt.Errorf("parse selectors %s: %w", path, err)
	}
	for _, pair := range sel.controls(&overlay) {
		if len(pair.overlay.Locators) > 0 {
			pair.base.Locators = pair.overlay.Locators
		}
		if len(pair.overlay.Modes) > 0 {
			pair.base.Modes = pair.overlay.Modes
		}
	}
	if err := sel.Validate(); err != nil {
		return Selectors{}, fmt.Errorf("selectors %s: %w", path, err)
	}
	return sel, nil
}

func (s *Selectors) Validate() error {
	for _, pair := range s.controls(s) {
		if len(pair.base.Locators) == 0 {
			return fmt.Errorf("control %s: no locators", pair.name)
		}
		for _, l := range pair.base.Locators {
			if err := l.Validate(); err != nil {
				return fmt.Errorf("control %s: %w", pair.name, err)
			}
		}
		for _, m := range pair.base.Modes {
			switch m {
			case ModeDirect, ModeScript, ModeScriptParent:
			default:
				return fmt.Errorf("control %s: unknown mode %q", pair.name, m)
			}
		}
	}
	return nil
}

type controlPair struct {
	name    string
	base    *Control
	overlay *Control
}

func (s *Selectors) controls(other *Selectors) []controlPair {
	return []controlPair{
		{"login", &s.Login, &other.Login},
		{"password", &s.Password, &other.Password},
		{"login_submit", &s.LoginSubmit, &other.LoginSubmit},
		{"module", &s.Module, &other.Module},
		{"add_new", &s.AddNew, &other.AddNew},
		{"item_input", &s.ItemInput, &other.ItemInput},
		{"item_append", &s.ItemAppend, &other.ItemAppend},
		{"save", &s.Save, &other.Save},
		{"confirm", &s.Confirm, &other.Confirm},
	}
}

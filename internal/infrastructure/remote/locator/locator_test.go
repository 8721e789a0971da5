package locator

import (
	"strings"
	"testing"
)

func TestQuery(t *testing.T) {
	tests := []struct {
		loc  Locator
		kind QueryKind
		want string
	}{
		{loc: ID("ctl00_ctl00_ctl00_CphBody_CphFormulario_BtnSalvar"), kind: QueryCSS, want: "#ctl00_ctl00_ctl00_CphBody_CphFormulario_BtnSalvar"},
		{loc: ID("1st"), kind: QueryCSS, want: `#\31 st`},
		{loc: Name("TxtSenha"), kind: QueryCSS, want: `[name="TxtSenha"]`},
		{loc: CSS(".mouseHover.text"), kind: QueryCSS, want: ".mouseHover.text"},
		{loc: XPath("//span[contains(text(), 'PAT')]"), kind: QueryXPath, want: "//span[contains(text(), 'PAT')]"},
		{loc: Text("Salvar"), kind: QueryXPath, want: "//*[contains(normalize-space(text()), 'Salvar')]"},
		{loc: Text("d'água"), kind: QueryXPath, want: `//*[contains(normalize-space(text()), "d'água")]`},
	}

	for _, tt := range tests {
		kind, got := tt.loc.Query()
		if kind != tt.kind || got != tt.want {
			t.Fatalf("%s Query() = (%v, %q), want (%v, %q)", tt.loc, kind, got, tt.kind, tt.want)
		}
	}
}

func TestXPathStringWithBothQuotes(t *testing.T) {
	got := xpathString(`a'b"c`)
	if got != `concat('a', "'", 'b"c')` {
		t.Fatalf("xpathString() = %s", got)
	}
}

func TestJSExpr(t *testing.T) {
	if got := ID("btnModalOk").JSExpr(); got != `document.querySelector("#btnModalOk")` {
		t.Fatalf("unexpected css expression %s", got)
	}
	got := XPath(`//span[contains(text(), "PAT")]`).JSExpr()
	if !strings.HasPrefix(got, `document.evaluate("//span[contains(text(), \"PAT\")]"`) {
		t.Fatalf("unexpected xpath expression %s", got)
	}
}

func TestValidate(t *testing.T) {
	if err := (Locator{By: "regex", Value: "x"}).Validate(); err == nil {
		t.Fatal("expected unknown strategy error")
	}
	if err := (Locator{By: ByCSS}).Validate(); err == nil {
		t.Fatal("expected empty value error")
	}
	if err := CSS("a").Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
}

package dom

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtract_SearchBoxFirst(t *testing.T) {
	p := newFakePage(t, `
		mount(
			h('nav', {},
				h('a', {href: 'https://fixture.test/home'}, 'Home'),
				h('button', {id: 'login'}, 'Sign in')),
			h('form', {action: '/s'},
				h('input', {type: 'search', name: 'q', id: 'q', placeholder: 'Search products'})));
	`)
	ex := mustExtract(t, p)
	require.Len(t, ex.Elements, 3)
	assert.Equal(t, "main", ex.FrameID)

	var tags []string
	for i, el := range ex.Elements {
		tags = append(tags, el.Tag)
		assert.Equal(t, []string{"0", "1", "2"}[i], el.SnapID, "snap ids follow the final order")
	}
	assert.Equal(t, []string{"input", "a", "button"}, tags)

	want := LocatorBundle{
		FrameID: "main",
		Role:    ptr("textbox"),
		CSS:     `input#q[name="q"][type="search"][placeholder="Search\ products"]`,
		XPath:   "//body/form/input",
		Tag:     "input",
		Attrs:   &Attrs{ID: "q", Name: "q", Type: "search", Placeholder: "Search products"},
	}
	if diff := cmp.Diff(want, ex.Elements[0].Locators); diff != "" {
		t.Errorf("search box locators mismatch (-want +got):\n%s", diff)
	}
}

func TestExtract_ButtonLocators(t *testing.T) {
	p := newFakePage(t, `
		mount(h('nav', {},
			h('a', {href: 'https://fixture.test/home'}, 'Home'),
			h('button', {id: 'login'}, '  Sign   in ')));
	`)
	ex := mustExtract(t, p)
	btn := elementByText(t, ex, "Sign in")

	assert.Equal(t, "button", btn.Tag)
	assert.Equal(t, "button", btn.Locators.RoleValue())
	assert.Equal(t, "Sign in", btn.Locators.NameValue())
	assert.Equal(t, "button#login", btn.Locators.CSS, "type comes from the attribute, not the property")
	assert.Equal(t, "//body/nav/button", btn.Locators.XPath)
	assert.Equal(t, "8yrbnc", btn.Locators.TextHashValue())
	require.NotNil(t, btn.Locators.Attrs)
	assert.Equal(t, "submit", btn.Locators.Attrs.Type)

	home := elementByText(t, ex, "Home")
	assert.Equal(t, "link", home.Locators.RoleValue())
	assert.Equal(t, "1cc1r", home.Locators.TextHashValue())
	assert.Equal(t, "https://fixture.test/home", home.Locators.Attrs.Href)
}

func TestExtract_SkipsHiddenAndDisabled(t *testing.T) {
	p := newFakePage(t, `
		mount(
			h('button', {}, 'Visible'),
			h('div', {style: 'display:none'}, h('button', {}, 'Hidden parent')),
			h('button', {style: 'visibility: hidden'}, 'Invisible'),
			h('button', {style: 'opacity: 0'}, 'Transparent'),
			h('button', {disabled: true}, 'Disabled'),
			h('span', {tabindex: '0', role: 'LINK'}, 'Custom link'));
	`)
	ex := mustExtract(t, p)

	var texts []string
	for _, el := range ex.Elements {
		texts = append(texts, el.Text)
	}
	assert.Equal(t, []string{"Visible", "Custom link"}, texts)
	assert.Equal(t, "link", ex.Elements[1].Locators.RoleValue(), "explicit role is lowercased")
}

func TestExtract_ExplicitRoleWins(t *testing.T) {
	p := newFakePage(t, `
		mount(
			h('a', {href: '/buy', role: 'button'}, 'Buy'),
			h('input', {type: 'checkbox', id: 'agree'}),
			h('select', {name: 'size'}, h('option', {}, 'S')));
	`)
	ex := mustExtract(t, p)

	assert.Equal(t, "button", elementByText(t, ex, "Buy").Locators.RoleValue())
	roles := map[string]string{}
	for _, el := range ex.Elements {
		roles[el.Tag] = el.Locators.RoleValue()
	}
	assert.Equal(t, "checkbox", roles["input"])
	assert.Equal(t, "combobox", roles["select"])
}

func TestExtract_AccessibleNames(t *testing.T) {
	p := newFakePage(t, `
		mount(
			h('label', {for: 'email'}, '  Email   address '),
			h('input', {id: 'email', type: 'email'}),
			h('span', {id: 'pw-label'}, 'Password'),
			h('input', {type: 'password', 'aria-labelledby': 'pw-label'}),
			h('button', {'aria-label': ' Close dialog '}, 'X'));
	`)
	ex := mustExtract(t, p)
	require.Len(t, ex.Elements, 3)

	assert.Equal(t, "input", ex.Elements[0].Tag, "email input counts as a search-like box")
	assert.Equal(t, "Email address", ex.Elements[0].Locators.NameValue())
	assert.Equal(t, "Close dialog", ex.Elements[1].Locators.NameValue())
	assert.Equal(t, "Password", ex.Elements[2].Locators.NameValue())
}

func TestExtract_XPathIndexesSameTagSiblings(t *testing.T) {
	p := newFakePage(t, `
		mount(h('div', {},
			h('input', {name: 'first', type: 'checkbox'}),
			h('span', {}, 'sep'),
			h('input', {name: 'second', type: 'checkbox'})));
	`)
	ex := mustExtract(t, p)
	require.Len(t, ex.Elements, 2)
	assert.Equal(t, "//body/div/input", ex.Elements[0].Locators.XPath)
	assert.Equal(t, "//body/div/input[2]", ex.Elements[1].Locators.XPath)
}

func TestExtract_TextCappedAt200(t *testing.T) {
	p := newFakePage(t, `mount(h('button', {}, 'a'.repeat(250)));`)
	ex := mustExtract(t, p)
	require.Len(t, ex.Elements, 1)
	assert.Equal(t, strings.Repeat("a", 200), ex.Elements[0].Text)
	assert.Equal(t, "7rhocg", ex.Elements[0].Locators.TextHashValue())
}

func TestExtract_EmptyTextHasNoHash(t *testing.T) {
	p := newFakePage(t, `mount(h('textarea', {name: 'notes'}));`)
	ex := mustExtract(t, p)
	require.Len(t, ex.Elements, 1)
	assert.Nil(t, ex.Elements[0].Locators.TextHash)
	assert.Nil(t, ex.Elements[0].Locators.Name)
	assert.Equal(t, "textbox", ex.Elements[0].Locators.RoleValue())
}

/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package issuematcher

import "testing"

func TestNormalizeLabel(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"module-spec", "module-spec"},
		{"Module Spec", "module-spec"},
		{"module_spec", "module-spec"},
		{"  MODULE--spec  ", "module-spec"},
		{"module / spec", "module-spec"},
		{"module.spec", "module-spec"},
		{"-module-spec-", "module-spec"},
		{"", ""},
		{" _ ", ""},
	}
	for _, tt := range tests {
		if got := NormalizeLabel(tt.in); got != tt.want {
			t.Errorf("NormalizeLabel(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestHasLabel(t *testing.T) {
	for _, l := range []string{"Module Spec", "module_spec", "module-spec"} {
		if !HasLabel([]string{"bug", l}, "module-spec") {
			t.Errorf("HasLabel(%q, module-spec) = false, want true", l)
		}
	}
	if HasLabel([]string{"module-specs"}, "module-spec") {
		t.Error("HasLabel(module-specs, module-spec) = true, want false")
	}
	if HasLabel([]string{""}, "") {
		t.Error("HasLabel with empty target = true, want false")
	}
}

func TestCheckboxChecked(t *testing.T) {
	tests := []struct {
		name string
		body string
		want bool
	}{{
		name: "checked",
		body: "- [x] Auto-generate PR",
		want: true,
	}, {
		name: "unchecked",
		body: "- [ ] Auto-generate PR",
		want: false,
	}, {
		name: "absent",
		body: "Some description\n- [x] Other task",
		want: false,
	}, {
		name: "empty",
		want: false,
	}, {
		name: "uppercase X and star bullet",
		body: "## Options\n* [X] auto generate a pull request PR\n",
		want: true,
	}, {
		name: "indented with trailing text",
		body: "intro\r\n  + [x] Auto-generated PR from this spec\r\n",
		want: true,
	}, {
		name: "one of two lines checked",
		body: "- [ ] Auto-generate PR\n- [x] Auto-generate PR",
		want: true,
	}, {
		name: "not a checklist line",
		body: "[x] Auto-generate PR",
		want: false,
	}, {
		name: "mentioned mid-line",
		body: "Please tick - [x] Auto-generate PR",
		want: false,
	}, {
		name: "no PR word",
		body: "- [x] Auto-generate docs",
		want: false,
	}}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CheckboxChecked(tt.body); got != tt.want {
				t.Errorf("CheckboxChecked(%q) = %t, want %t", tt.body, got, tt.want)
			}
		})
	}
}

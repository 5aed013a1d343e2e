// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import "testing"

func TestNewTheme_Mode(t *testing.T) {
	if th := NewTheme("light"); th.IsDark || th.GlamourStyle() != "light" {
		t.Errorf("light theme: IsDark=%v glamour=%s", th.IsDark, th.GlamourStyle())
	}
	if th := NewTheme("dark"); !th.IsDark || th.GlamourStyle() != "dark" {
		t.Errorf("dark theme: IsDark=%v glamour=%s", th.IsDark, th.GlamourStyle())
	}
}

func TestLayoutMode(t *testing.T) {
	tests := []struct {
		width   int
		mode    LayoutMode
		sidebar int
	}{
		{40, LayoutNarrow, 0},
		{59, LayoutNarrow, 0},
		{60, LayoutMedium, 24},
		{99, LayoutMedium, 24},
		{100, LayoutWide, 32},
		{200, LayoutWide, 32},
	}
	th := NewTheme("dark")
	for _, tt := range tests {
		th.SetSize(tt.width, 40)
		if got := th.GetLayoutMode(); got != tt.mode {
			t.Errorf("width %d: mode = %d, want %d", tt.width, got, tt.mode)
		}
		if got := th.SidebarWidth(); got != tt.sidebar {
			t.Errorf("width %d: sidebar = %d, want %d", tt.width, got, tt.sidebar)
		}
	}
}

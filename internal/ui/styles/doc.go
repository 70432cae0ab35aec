// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package styles provides colors and the Theme for the streamchat TUI.

Colors are lipgloss.AdaptiveColor values; NewTheme fixes the background
to dark or light ("auto" asks the terminal through termenv) so that every
adaptive color and the markdown style agree.

	theme := styles.NewTheme(cfg.UI.Theme)
	theme.SetSize(width, height)
	header := theme.Header.Render("Weather Agent")
*/
package styles

package banner

import (
	"catalogload/internal/tui/styles"

	"github.com/charmbracelet/lipgloss"
)

const ascii = `
           __       __                 __              __
  _______ _/ /____ _/ /__  ___ _  ___  / /__  ___ ____/ /
 / __/ _ '/ __/ _ '/ / _ \/ _ '/ /__/ / / _ \/ _ '/ _  /
 \__/\_,_/\__/\_,_/_/\___/\_, /      /_/\___/\_,_/\_,_/
                         /___/                           `

func GetString() string {
	renderer := lipgloss.DefaultRenderer()

	style := renderer.NewStyle().
		Foreground(styles.ColorBanner).
		Bold(true)

	return "\n" + style.Render(ascii) + "\n"
}

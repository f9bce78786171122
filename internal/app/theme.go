package app

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/lucasb-eyer/go-colorful"

	"github.com/dshills/stormline/internal/config"
)

const sgrReset = "\x1b[0m"

// Theme colors the primary prompt.
type Theme struct {
	Name   string
	prompt string // SGR sequence, empty for no color
	path   string
}

// NewTheme converts hex colors to truecolor SGR sequences.
func NewTheme(cfg config.ThemeConfig) (Theme, error) {
	t := Theme{Name: cfg.Name}
	var err error
	if t.prompt, err = foreground(cfg.PromptColor); err != nil {
		return Theme{}, err
	}
	if t.path, err = foreground(cfg.PathColor); err != nil {
		return Theme{}, err
	}
	return t, nil
}

func foreground(hex string) (string, error) {
	if hex == "" {
		return "", nil
	}
	c, err := colorful.Hex(hex)
	if err != nil {
		return "", err
	}
	r, g, b := c.Clamped().RGB255()
	var sb strings.Builder
	sb.WriteString("\x1b[38;2;")
	sb.WriteString(strconv.Itoa(int(r)))
	sb.WriteByte(';')
	sb.WriteString(strconv.Itoa(int(g)))
	sb.WriteByte(';')
	sb.WriteString(strconv.Itoa(int(b)))
	sb.WriteByte('m')
	return sb.String(), nil
}

func paint(seq, text string) string {
	if seq == "" {
		return text
	}
	return seq + text + sgrReset
}

// PromptInfo is the session information shown in the prompt.
type PromptInfo struct {
	User string
	Host string
	Dir  string
}

// CurrentPromptInfo reads the user, host and working directory of the
// process. The home directory is shown as "~".
func CurrentPromptInfo() PromptInfo {
	info := PromptInfo{User: os.Getenv("USER")}
	if info.User == "" {
		info.User = "user"
	}
	if h, err := os.Hostname(); err == nil {
		info.Host, _, _ = strings.Cut(h, ".")
	}
	if dir, err := os.Getwd(); err == nil {
		info.Dir = dir
		if home, err := os.UserHomeDir(); err == nil && home != "" {
			if rel, err := filepath.Rel(home, dir); err == nil && !strings.HasPrefix(rel, "..") {
				info.Dir = filepath.Join("~", rel)
				if rel == "." {
					info.Dir = "~"
				}
			}
		}
	}
	return info
}

// Prompt renders "user@host:dir$ " in the theme colors.
func (t Theme) Prompt(info PromptInfo) string {
	var sb strings.Builder
	who := info.User
	if info.Host != "" {
		who += "@" + info.Host
	}
	sb.WriteString(paint(t.prompt, who))
	if info.Dir != "" {
		sb.WriteByte(':')
		sb.WriteString(paint(t.path, info.Dir))
	}
	sb.WriteString("$ ")
	return sb.String()
}

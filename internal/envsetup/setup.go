// envsetup provides a lightweight .env configuration wizard.
// It runs automatically on first startup when no .env file exists,
// collecting the MAX bot token and ingress settings.
package envsetup

import (
	"fmt"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type step int

const (
	stepWelcome step = iota
	stepToken
	stepMode
	stepWebhookURL
	stepWebhookSecret
	stepConfirm
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("99")).
			MarginBottom(1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	linkStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")).
			Underline(true)

	inputStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("229"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("82"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))
)

type model struct {
	step          step
	botToken      string
	mode          string
	webhookURL    string
	webhookSecret string
	input         string
	err           error
	width         int
	height        int
}

func New() model {
	return model{
		step: stepWelcome,
	}
}

func (m model) Init() tea.Cmd {
	return nil
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC:
			return m, tea.Quit

		case tea.KeyEnter:
			return m.handleEnter()

		case tea.KeyBackspace:
			if len(m.input) > 0 {
				m.input = m.input[:len(m.input)-1]
			}
			return m, nil

		case tea.KeyRunes:
			m.input += string(msg.Runes)
			return m, nil

		case tea.KeySpace:
			m.input += " "
			return m, nil
		}
	}

	return m, nil
}

func (m model) handleEnter() (tea.Model, tea.Cmd) {
	m.err = nil

	switch m.step {
	case stepWelcome:
		m.step = stepToken
		m.input = ""

	case stepToken:
		token := strings.TrimSpace(m.input)
		if token == "" {
			m.err = fmt.Errorf("bot token is required")
			return m, nil
		}
		m.botToken = token
		m.step = stepMode
		m.input = ""

	case stepMode:
		choice := strings.TrimSpace(strings.ToLower(m.input))
		if choice != "1" && choice != "2" && choice != "polling" && choice != "webhook" {
			m.err = fmt.Errorf("please enter 1 for polling or 2 for webhook")
			return m, nil
		}
		if choice == "1" || choice == "polling" {
			m.mode = "polling"
			m.step = stepConfirm
		} else {
			m.mode = "webhook"
			m.step = stepWebhookURL
		}
		m.input = ""

	case stepWebhookURL:
		url := strings.TrimSpace(m.input)
		if !strings.HasPrefix(url, "https://") {
			m.err = fmt.Errorf("webhook URL must start with https://")
			return m, nil
		}
		m.webhookURL = url
		m.step = stepWebhookSecret
		m.input = ""

	case stepWebhookSecret:
		secret := strings.TrimSpace(m.input)
		if secret == "" {
			m.err = fmt.Errorf("webhook secret is required")
			return m, nil
		}
		m.webhookSecret = secret
		m.step = stepConfirm
		m.input = ""

	case stepConfirm:
		choice := strings.TrimSpace(strings.ToLower(m.input))
		if choice == "y" || choice == "yes" || choice == "" {
			if err := m.writeEnvFile(); err != nil {
				m.err = err
				return m, nil
			}
			return m, tea.Quit
		} else if choice == "n" || choice == "no" {
			m.step = stepWelcome
			m.input = ""
			m.botToken = ""
			m.mode = ""
			m.webhookURL = ""
			m.webhookSecret = ""
		}
	}

	return m, nil
}

func (m model) writeEnvFile() error {
	var s strings.Builder
	fmt.Fprintf(&s, "MAX_BOT_TOKEN=%s\n", m.botToken)
	fmt.Fprintf(&s, "BOT_MODE=%s\n", m.mode)
	fmt.Fprintf(&s, "DATABASE_URL=./maxbot.json\n")
	if m.mode == "webhook" {
		fmt.Fprintf(&s, "WEBHOOK_URL=%s\n", m.webhookURL)
		fmt.Fprintf(&s, "WEBHOOK_SECRET=%s\n", m.webhookSecret)
	}
	return os.WriteFile(".env", []byte(s.String()), 0600)
}

func (m model) View() string {
	var s strings.Builder

	switch m.step {
	case stepWelcome:
		s.WriteString(titleStyle.Render("MAX Bot - Env Setup"))
		s.WriteString("\n\n")
		s.WriteString("This wizard will help you configure the bot.\n")
		s.WriteString("You'll need:\n\n")
		s.WriteString("  - A MAX bot token\n")
		s.WriteString("  - For webhook mode: a public HTTPS URL and a shared secret\n")
		s.WriteString("\n")
		s.WriteString(dimStyle.Render("Press Enter to continue, Ctrl+C to exit"))

	case stepToken:
		s.WriteString(titleStyle.Render("Step 1: MAX Bot Token"))
		s.WriteString("\n\n")
		s.WriteString("To get your bot token:\n\n")
		s.WriteString("  1. Open " + linkStyle.Render("https://dev.max.ru") + "\n")
		s.WriteString("  2. Create a new bot (or select an existing one)\n")
		s.WriteString("  3. Copy the token shown on the bot page\n")
		s.WriteString("\n")
		s.WriteString(labelStyle.Render("Paste your bot token here:"))
		s.WriteString("\n")
		s.WriteString("> " + inputStyle.Render(maskToken(m.input)))
		if m.err != nil {
			s.WriteString("\n" + errorStyle.Render(m.err.Error()))
		}

	case stepMode:
		s.WriteString(titleStyle.Render("Step 2: Choose Update Mode"))
		s.WriteString("\n\n")
		s.WriteString("How should the bot receive updates?\n\n")
		s.WriteString("  1. Polling (simplest, no public endpoint needed)\n")
		s.WriteString("  2. Webhook (the platform pushes updates to your server)\n")
		s.WriteString("\n")
		s.WriteString(labelStyle.Render("Enter 1 or 2:"))
		s.WriteString("\n")
		s.WriteString("> " + inputStyle.Render(m.input))
		if m.err != nil {
			s.WriteString("\n" + errorStyle.Render(m.err.Error()))
		}

	case stepWebhookURL:
		s.WriteString(titleStyle.Render("Step 3: Webhook URL"))
		s.WriteString("\n\n")
		s.WriteString("The publicly reachable HTTPS endpoint the platform will push to,\n")
		s.WriteString("e.g. https://bot.example.com/webhook\n")
		s.WriteString("\n")
		s.WriteString(labelStyle.Render("Enter your webhook URL:"))
		s.WriteString("\n")
		s.WriteString("> " + inputStyle.Render(m.input))
		if m.err != nil {
			s.WriteString("\n" + errorStyle.Render(m.err.Error()))
		}

	case stepWebhookSecret:
		s.WriteString(titleStyle.Render("Step 4: Webhook Secret"))
		s.WriteString("\n\n")
		s.WriteString("A shared secret used to verify the signature on every push.\n")
		s.WriteString("Pick a long random string and configure the same value on the\n")
		s.WriteString("platform side.\n")
		s.WriteString("\n")
		s.WriteString(labelStyle.Render("Enter your webhook secret:"))
		s.WriteString("\n")
		s.WriteString("> " + inputStyle.Render(maskToken(m.input)))
		if m.err != nil {
			s.WriteString("\n" + errorStyle.Render(m.err.Error()))
		}

	case stepConfirm:
		s.WriteString(titleStyle.Render("Configuration Complete"))
		s.WriteString("\n\n")
		s.WriteString("Your configuration:\n\n")
		s.WriteString("  Bot token: " + successStyle.Render(maskToken(m.botToken)) + "\n")
		s.WriteString("  Mode:      " + successStyle.Render(m.mode) + "\n")
		s.WriteString("  Database:  " + successStyle.Render("./maxbot.json") + "\n")
		if m.mode == "webhook" {
			s.WriteString("  Webhook:   " + successStyle.Render(m.webhookURL) + "\n")
			s.WriteString("  Secret:    " + successStyle.Render(maskToken(m.webhookSecret)) + "\n")
		}
		s.WriteString("\n")
		s.WriteString(labelStyle.Render("Save this configuration? [Y/n]:"))
		s.WriteString("\n")
		s.WriteString("> " + inputStyle.Render(m.input))
		if m.err != nil {
			s.WriteString("\n" + errorStyle.Render(m.err.Error()))
		}
	}

	s.WriteString("\n")
	return s.String()
}

func maskToken(token string) string {
	if len(token) <= 8 {
		return strings.Repeat("*", len(token))
	}
	return token[:4] + strings.Repeat("*", len(token)-8) + token[len(token)-4:]
}

// Run starts the setup wizard and returns true if setup was completed successfully
func Run() (bool, error) {
	p := tea.NewProgram(New())
	finalModel, err := p.Run()
	if err != nil {
		return false, err
	}

	m := finalModel.(model)
	return m.step == stepConfirm && m.err == nil, nil
}

// NeedsSetup checks if .env file exists
func NeedsSetup() bool {
	_, err := os.Stat(".env")
	return os.IsNotExist(err)
}

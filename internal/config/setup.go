package config

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/go-resty/resty/v2"
	"golang.org/x/term"
)

// envOrder is the order variables are written to config.env.
var envOrder = []string{
	"SUPABASE_URL",
	"SUPABASE_ANON_KEY",
	"VISION_PROVIDER",
	"OPENROUTER_API_KEY",
	"GEMINI_API_KEY",
	"OPENAI_API_KEY",
	"HOTPOTATO_TOKEN_KEY",
}

const validateTimeout = 10 * time.Second

// IsInteractiveTerminal returns true if both stdin and stdout are TTYs.
func IsInteractiveTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

// RunSetupWizard asks for the required settings and writes them to
// config.env. It returns false when the user aborts or saving fails.
func RunSetupWizard() bool {
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("208")).
		MarginBottom(1)

	fmt.Println()
	fmt.Println(titleStyle.Render("🥔 HotPotato - First-time Setup"))
	fmt.Println()

	var supabaseURL, anonKey, apiKey string
	provider := ProviderOpenRouter

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Supabase project URL").
				Description("Project settings → API → Project URL").
				Value(&supabaseURL).
				Validate(func(s string) error {
					if s == "" {
						return errors.New("URL is required")
					}
					if !strings.HasPrefix(s, "https://") && !strings.HasPrefix(s, "http://") {
						return errors.New("must start with https://")
					}
					return nil
				}),
			huh.NewInput().
				Title("Supabase anon key").
				Description("Project settings → API → anon public key").
				Value(&anonKey).
				Validate(func(s string) error {
					if s == "" {
						return errors.New("anon key is required")
					}
					return validateSupabaseKey(supabaseURL, s)
				}),
		),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Vision provider").
				Options(
					huh.NewOption("OpenRouter", ProviderOpenRouter),
					huh.NewOption("Gemini", ProviderGemini),
					huh.NewOption("OpenAI", ProviderOpenAI),
				).
				Value(&provider),
		),
		huh.NewGroup(
			huh.NewInput().
				TitleFunc(func() string { return providerKeyTitle(provider) }, &provider).
				Value(&apiKey).
				Validate(func(s string) error {
					if s == "" {
						return errors.New("API key is required")
					}
					if provider == ProviderOpenRouter {
						return validateOpenRouterKey(s)
					}
					return nil
				}),
		),
	).WithTheme(huh.ThemeBase16())

	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			fmt.Println("\nSetup cancelled.")
			return false
		}
		fmt.Printf("\nError: %v\n", err)
		return false
	}

	values := map[string]string{
		"SUPABASE_URL":        strings.TrimRight(supabaseURL, "/"),
		"SUPABASE_ANON_KEY":   anonKey,
		"VISION_PROVIDER":     provider,
		"HOTPOTATO_TOKEN_KEY": GenerateTokenKey(),
	}
	values[providerKeyVar(provider)] = apiKey

	configPath, err := FilePath()
	if err == nil {
		err = WriteEnvFile(configPath, values)
	}
	if err != nil {
		fmt.Printf("\nError saving configuration: %v\n", err)
		WaitOnWindows()
		return false
	}

	for k, v := range values {
		os.Setenv(k, v)
	}

	successStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	pathStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("245"))

	fmt.Println()
	fmt.Println(successStyle.Render("✓ Configuration saved"))
	fmt.Println(pathStyle.Render("  " + configPath))
	fmt.Println()
	return true
}

func providerKeyVar(provider string) string {
	c := Config{VisionProvider: provider}
	name, _ := c.visionKeyVar()
	return name
}

func providerKeyTitle(provider string) string {
	switch provider {
	case ProviderGemini:
		return "Gemini API key"
	case ProviderOpenAI:
		return "OpenAI API key"
	default:
		return "OpenRouter API key"
	}
}

// GenerateTokenKey returns a random passphrase for session encryption.
func GenerateTokenKey() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("hotpotato-%d", time.Now().UnixNano())
	}
	return base64.URLEncoding.EncodeToString(b)
}

// validateSupabaseKey checks the anon key against the project's auth
// settings endpoint.
func validateSupabaseKey(projectURL, key string) error {
	if projectURL == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), validateTimeout)
	defer cancel()

	res, err := resty.New().R().
		SetContext(ctx).
		SetHeader("apikey", key).
		Get(strings.TrimRight(projectURL, "/") + "/auth/v1/settings")
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return errors.New("connection timed out - check the URL")
		}
		return errors.New("connection failed - check the URL")
	}
	if res.StatusCode() == 401 || res.StatusCode() == 403 {
		return errors.New("anon key rejected by Supabase")
	}
	if res.IsError() {
		return fmt.Errorf("unexpected response (HTTP %d)", res.StatusCode())
	}
	return nil
}

// validateOpenRouterKey checks the key with OpenRouter's key endpoint.
func validateOpenRouterKey(key string) error {
	ctx, cancel := context.WithTimeout(context.Background(), validateTimeout)
	defer cancel()

	var errBody struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	res, err := resty.New().R().
		SetContext(ctx).
		SetAuthToken(key).
		SetError(&errBody).
		Get("https://openrouter.ai/api/v1/key")
	if err != nil {
		return errors.New("connection failed - check your internet")
	}
	if res.IsError() {
		if errBody.Error.Message != "" {
			return errors.New(errBody.Error.Message)
		}
		return fmt.Errorf("API key rejected (HTTP %d)", res.StatusCode())
	}
	return nil
}

// WriteEnvFile writes values to path with restrictive permissions since
// the file contains secrets. Known keys come first in a fixed order.
func WriteEnvFile(path string, values map[string]string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	written := map[string]bool{}
	write := func(key string) error {
		val, ok := values[key]
		if !ok || written[key] {
			return nil
		}
		written[key] = true
		if _, err := fmt.Fprintf(f, "%s=%q\n", key, val); err != nil {
			return fmt.Errorf("failed to write %s: %w", key, err)
		}
		return nil
	}

	for _, key := range envOrder {
		if err := write(key); err != nil {
			return err
		}
	}
	for key := range values {
		if err := write(key); err != nil {
			return err
		}
	}
	return nil
}

// WaitOnWindows pauses so users can read errors before the console window
// closes.
func WaitOnWindows() {
	if runtime.GOOS == "windows" {
		fmt.Println()
		fmt.Println("Press Enter to exit...")
		fmt.Scanln()
	}
}

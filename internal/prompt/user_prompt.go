package prompt

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// UserPrompt represents a user-defined prompt template.
type UserPrompt struct {
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Content     string     `json:"content"`
	Slot        PromptSlot `json:"slot,omitempty"` // Target injection slot
	Tags        []string   `json:"tags,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// UserPromptStore is the interface for persisting user prompts.
type UserPromptStore interface {
	Get(name string) (*UserPrompt, error)
	Set(prompt *UserPrompt) error
	Delete(name string) error
	List() ([]*UserPrompt, error)
}

// FileUserPromptStore implements UserPromptStore using a JSON file.
type FileUserPromptStore struct {
	path string
	mu   sync.RWMutex
}

// NewFileUserPromptStore creates a new file-based user prompt store.
// If path is empty, uses default ~/.agentcore/user-prompts.json.
func NewFileUserPromptStore(path string) *FileUserPromptStore {
	if path == "" {
		homeDir, _ := os.UserHomeDir()
		path = filepath.Join(homeDir, ".agentcore", "user-prompts.json")
	}
	return &FileUserPromptStore{path: path}
}

// Get retrieves a user prompt by name.
func (s *FileUserPromptStore) Get(name string) (*UserPrompt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	prompts, err := s.loadPrompts()
	if err != nil {
		return nil, err
	}

	for _, p := range prompts {
		if p.Name == name {
			return p, nil
		}
	}
	return nil, nil
}

// Set stores or updates a user prompt.
func (s *FileUserPromptStore) Set(prompt *UserPrompt) error {
	if prompt == nil || prompt.Name == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prompts, err := s.loadPrompts()
	if err != nil {
		prompts = make([]*UserPrompt, 0)
	}

	// Check if prompt exists and update, or append new
	found := false
	for i, p := range prompts {
		if p.Name == prompt.Name {
			prompt.UpdatedAt = time.Now()
			prompts[i] = prompt
			found = true
			break
		}
	}

	if !found {
		prompt.CreatedAt = time.Now()
		prompt.UpdatedAt = prompt.CreatedAt
		prompts = append(prompts, prompt)
	}

	return s.savePrompts(prompts)
}

// Delete removes a user prompt by name.
func (s *FileUserPromptStore) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prompts, err := s.loadPrompts()
	if err != nil {
		return nil
	}

	filtered := make([]*UserPrompt, 0)
	for _, p := range prompts {
		if p.Name != name {
			filtered = append(filtered, p)
		}
	}

	return s.savePrompts(filtered)
}

// List returns all user prompts.
func (s *FileUserPromptStore) List() ([]*UserPrompt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadPrompts()
}

// loadPrompts reads prompts from the JSON file.
func (s *FileUserPromptStore) loadPrompts() ([]*UserPrompt, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return make([]*UserPrompt, 0), nil
		}
		return nil, err
	}

	var prompts []*UserPrompt
	if err := json.Unmarshal(data, &prompts); err != nil {
		return nil, err
	}
	return prompts, nil
}

// savePrompts writes prompts to the JSON file.
func (s *FileUserPromptStore) savePrompts(prompts []*UserPrompt) error {
	// Ensure directory exists
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(prompts, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0644)
}

// ExecutePromptCommand handles the "/prompt" slash command against store,
// returning the response text and whether the command was recognized.
func ExecutePromptCommand(cmd *SlashCommand, store UserPromptStore) (string, bool) {
	if cmd == nil || cmd.Name != "prompt" {
		return "", false
	}

	switch cmd.Action {
	case "list", "":
		prompts, err := store.List()
		if err != nil {
			return fmt.Sprintf("failed to list prompts: %v", err), true
		}
		if len(prompts) == 0 {
			return "No user prompts defined.", true
		}
		var b strings.Builder
		for _, p := range prompts {
			fmt.Fprintf(&b, "- %s", p.Name)
			if p.Description != "" {
				fmt.Fprintf(&b, ": %s", p.Description)
			}
			b.WriteString("\n")
		}
		return strings.TrimRight(b.String(), "\n"), true

	case "show":
		if len(cmd.Args) == 0 {
			return "Usage: /prompt show <name>", true
		}
		name := cmd.Args[0]
		prompt, err := store.Get(name)
		if err != nil || prompt == nil {
			return fmt.Sprintf("Prompt '%s' not found.", name), true
		}
		return prompt.Content, true

	case "delete":
		if len(cmd.Args) == 0 {
			return "Usage: /prompt delete <name>", true
		}
		name := cmd.Args[0]
		if err := store.Delete(name); err != nil {
			return fmt.Sprintf("failed to delete prompt '%s': %v", name, err), true
		}
		return fmt.Sprintf("Prompt '%s' deleted.", name), true

	default:
		return fmt.Sprintf("Unknown /prompt action: %s", cmd.Action), true
	}
}

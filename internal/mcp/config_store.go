package mcp

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"agentcore/internal/config"
	"agentcore/internal/mcp/client"
	"agentcore/internal/mcp/transport"
)

// ServerPersist is the on-disk representation of an MCP server connection,
// written so mcp_add/mcp_update survive a restart and can be reconnected by
// LoadSavedServers at startup.
type ServerPersist struct {
	Name    string            `json:"name"`
	Type    string            `json:"type"`
	URL     string            `json:"url,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Command string            `json:"command,omitempty"`
	Args    []string          `json:"args,omitempty"`
}

var configStoreMu sync.Mutex

func configPath() (string, error) {
	dir, err := config.DefaultConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "mcp_servers.json"), nil
}

// LoadServersConfig loads the persisted MCP server list. A missing file is
// not an error: it means no server has been added yet.
func LoadServersConfig() ([]ServerPersist, error) {
	path, err := configPath()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var servers []ServerPersist
	if err := json.Unmarshal(data, &servers); err != nil {
		return nil, err
	}
	return servers, nil
}

func saveServersConfig(servers []ServerPersist) error {
	configStoreMu.Lock()
	defer configStoreMu.Unlock()

	path, err := configPath()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(servers, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// AddServerToConfig inserts or replaces a server entry by name.
func AddServerToConfig(server ServerPersist) error {
	servers, err := LoadServersConfig()
	if err != nil {
		servers = nil
	}

	found := false
	for i, s := range servers {
		if s.Name == server.Name {
			servers[i] = server
			found = true
			break
		}
	}
	if !found {
		servers = append(servers, server)
	}

	return saveServersConfig(servers)
}

// RemoveServerFromConfig drops a server entry by name. Removing an unknown
// name is a no-op.
func RemoveServerFromConfig(name string) error {
	servers, err := LoadServersConfig()
	if err != nil {
		return nil
	}

	filtered := make([]ServerPersist, 0, len(servers))
	for _, s := range servers {
		if s.Name != name {
			filtered = append(filtered, s)
		}
	}

	return saveServersConfig(filtered)
}

// LoadSavedServers reconnects every persisted server against manager. Called
// once at startup after the MCP client manager is constructed; individual
// connection failures are swallowed so one bad server doesn't block the rest.
func LoadSavedServers(ctx context.Context, manager *client.Manager) error {
	servers, err := LoadServersConfig()
	if err != nil {
		return err
	}

	for _, server := range servers {
		cfg := client.ClientConfig{
			Command: server.Name,
		}

		switch server.Type {
		case "http":
			cfg.TransportType = transport.TransportHTTP
			cfg.URL = server.URL
			cfg.Headers = server.Headers
		case "stdio":
			cfg.TransportType = transport.TransportStdio
			cfg.Command = server.Command
			cfg.Args = server.Args
		default:
			continue
		}

		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		_ = manager.Connect(connectCtx, cfg)
		cancel()
	}

	return nil
}

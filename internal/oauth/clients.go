package oauth

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/andyleap/oidcflow/internal/models"
)

// DefaultClients is the demo registration used when no clients file is given.
func DefaultClients() []models.Client {
	return []models.Client{
		{
			ID:          "client-id",
			Secret:      "client-secret",
			Name:        "Demo Relying Party",
			RedirectURI: "http://localhost:4000/callback/local",
		},
	}
}

type clientsFile struct {
	Clients []models.Client `yaml:"clients"`
}

// LoadClients reads client registrations from a YAML file of the form
//
//	clients:
//	  - client_id: client-id
//	    client_secret: client-secret
//	    name: Demo
//	    redirect_uri: http://localhost:4000/callback/local
func LoadClients(path string) ([]models.Client, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read clients file: %w", err)
	}

	var file clientsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse clients file: %w", err)
	}
	if len(file.Clients) == 0 {
		return nil, fmt.Errorf("clients file %s has no clients", path)
	}

	return file.Clients, nil
}

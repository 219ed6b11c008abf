package server

import (
	"embed"
	"html/template"

	"github.com/MarcoPoloResearchLab/linkdeck/internal/users"
)

//go:embed templates/*.html
var templateFiles embed.FS

var providerLabels = map[users.Provider]string{
	users.ProviderGitHub:   "GitHub",
	users.ProviderTwitter:  "Twitter",
	users.ProviderFacebook: "Facebook",
}

func loadTemplates() (*template.Template, error) {
	return template.New("").
		Funcs(template.FuncMap{"providerLabel": providerLabel}).
		ParseFS(templateFiles, "templates/*.html")
}

func providerLabel(provider users.Provider) string {
	if label, ok := providerLabels[provider]; ok {
		return label
	}
	return provider.String()
}

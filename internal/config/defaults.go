package config

// DefaultTeam returns the built-in responder roster.
func DefaultTeam() []MemberConfig {
	return []MemberConfig{
		{ID: "admin", Email: "admin@incident.com", Name: "System Admin", Role: "admin", Skills: []string{"Incident Management", "System Architecture", "Security"}, Status: "available"},
		{ID: "engineer", Email: "engineer@incident.com", Name: "Senior Engineer", Role: "responder", Skills: []string{"Backend", "Database", "API"}, Status: "available"},
		{ID: "viewer", Email: "viewer@incident.com", Name: "Operations Viewer", Role: "viewer", Skills: []string{"Monitoring", "Reporting", "Documentation"}, Status: "available"},
		{ID: "dba", Email: "dba@incident.com", Name: "Database Admin", Role: "responder", Skills: []string{"Database", "Performance", "Backup"}, Status: "available"},
		{ID: "devops", Email: "devops@incident.com", Name: "DevOps Engineer", Role: "responder", Skills: []string{"Infrastructure", "CI/CD", "Monitoring"}, Status: "busy"},
		{ID: "support", Email: "support@incident.com", Name: "Support Lead", Role: "viewer", Skills: []string{"Customer Support", "Communication", "Documentation"}, Status: "available"},
	}
}

// DefaultSeedUsers returns the demo accounts.
func DefaultSeedUsers() []SeedUser {
	return []SeedUser{
		{Email: "admin@incident.com", Password: "admin123", DisplayName: "System Admin", Role: "admin"},
		{Email: "engineer@incident.com", Password: "engineer123", DisplayName: "Senior Engineer", Role: "responder"},
		{Email: "viewer@incident.com", Password: "viewer123", DisplayName: "Operations Viewer", Role: "viewer"},
	}
}

package database

import "github.com/noah-isme/lesson-calendar-api/pkg/config"

func configForTest() config.DatabaseConfig {
	return config.DatabaseConfig{Host: "localhost", Port: 5432, User: "u", Password: "p", Name: "lessons", SSLMode: "disable"}
}

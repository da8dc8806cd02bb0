// Package cloudsql resolves the PostgreSQL connection string for both local
// development and Cloud Run deployments backed by Google Cloud SQL.
package cloudsql

import (
	"fmt"
	"os"
	"strings"
)

// BuildDatabaseURL returns the connection string the server should use.
//
// When DATABASE_URL is set it is returned as-is. Otherwise the Cloud SQL
// variables take over: INSTANCE_CONNECTION_NAME (project:region:instance)
// plus DB_USER and DB_NAME, with DB_PASSWORD optional for IAM auth. Cloud Run
// mounts the instance socket at /cloudsql/<instance>.
func BuildDatabaseURL() (string, error) {
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		return dbURL, nil
	}

	instance := os.Getenv("INSTANCE_CONNECTION_NAME")
	if instance == "" {
		return "", fmt.Errorf("neither DATABASE_URL nor INSTANCE_CONNECTION_NAME is set")
	}

	user := os.Getenv("DB_USER")
	name := os.Getenv("DB_NAME")
	if user == "" || name == "" {
		return "", fmt.Errorf("DB_USER and DB_NAME must be set when using INSTANCE_CONNECTION_NAME")
	}

	socket := fmt.Sprintf("/cloudsql/%s", instance)
	if password := os.Getenv("DB_PASSWORD"); password != "" {
		return fmt.Sprintf("host=%s user=%s password=%s dbname=%s sslmode=disable",
			socket, user, password, name), nil
	}
	return fmt.Sprintf("host=%s user=%s dbname=%s sslmode=disable", socket, user, name), nil
}

// GetConnectionConfig describes the resolved connection for startup logging.
// Passwords are redacted.
func GetConnectionConfig() map[string]string {
	config := make(map[string]string)

	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config["connection_type"] = "direct"
		config["database_url"] = redactPassword(dbURL)
		return config
	}

	if instance := os.Getenv("INSTANCE_CONNECTION_NAME"); instance != "" {
		config["connection_type"] = "cloud_sql"
		config["instance"] = instance
		config["user"] = os.Getenv("DB_USER")
		config["database"] = os.Getenv("DB_NAME")
		config["socket_path"] = fmt.Sprintf("/cloudsql/%s", instance)
		return config
	}

	config["connection_type"] = "none"
	config["error"] = "no database configuration found"
	return config
}

func redactPassword(connStr string) string {
	if strings.HasPrefix(connStr, "postgresql://") || strings.HasPrefix(connStr, "postgres://") {
		parts := strings.SplitN(connStr, "@", 2)
		if len(parts) == 2 {
			userParts := strings.Split(parts[0], ":")
			if len(userParts) >= 3 {
				return userParts[0] + "://" + userParts[1] + ":***@" + parts[1]
			}
		}
	}
	return connStr
}

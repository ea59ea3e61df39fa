package utils

import (
	"fmt"
	"os"
	"strings"
)

// ReadSecret читает секрет из файла в стандартном пути Docker Secrets.
func ReadSecret(secretName string) (string, error) {
	filePath := fmt.Sprintf("/run/secrets/%s", secretName)
	secretBytes, err := os.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to read secret file %s: %w", filePath, err)
	}
	secret := strings.TrimSpace(string(secretBytes))
	if secret == "" {
		return "", fmt.Errorf("secret file %s is empty", filePath)
	}
	return secret, nil
}

// ReadSecretOrEnv читает секрет из Docker Secrets, а при его отсутствии -
// из переменной окружения envName. Пустая строка означает, что значение
// не задано нигде.
func ReadSecretOrEnv(secretName, envName string) string {
	if secret, err := ReadSecret(secretName); err == nil {
		return secret
	}
	return strings.TrimSpace(os.Getenv(envName))
}

// Package keychain persists bangumi credentials in the operating system
// keyring.
package keychain

import (
	"github.com/zalando/go-keyring"
)

const (
	service     = "bgm-cli"
	emailKey    = "email"
	passwordKey = "password"
)

// SetCredentials stores the login email and password in the system keyring.
func SetCredentials(email, password string) error {
	err := keyring.Set(service, emailKey, email)
	if err != nil {
		return err
	}
	return keyring.Set(service, passwordKey, password)
}

// GetCredentials retrieves the stored login email and password.
func GetCredentials() (email, password string, err error) {
	email, err = keyring.Get(service, emailKey)
	if err != nil {
		return "", "", err
	}
	password, err = keyring.Get(service, passwordKey)
	if err != nil {
		return "", "", err
	}
	return email, password, nil
}

// DeleteCredentials removes the stored login email and password.
func DeleteCredentials() error {
	err := keyring.Delete(service, emailKey)
	if err != nil {
		return err
	}
	return keyring.Delete(service, passwordKey)
}

package utils

import (
	gonanoid "github.com/matoous/go-nanoid/v2"
)

const idAlphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// GenerateID returns "<prefix>_<nanoid>" using an alphanumeric alphabet.
func GenerateID(prefix string) (string, error) {
	id, err := gonanoid.Generate(idAlphabet, 21)
	if err != nil {
		return "", err
	}
	return prefix + "_" + id, nil
}

package service

import "errors"

// Ошибки валидации, отдаются клиенту как 400
var (
	ErrInvalidURL    = errors.New("invalid destination URL")
	ErrInvalidAlias  = errors.New("invalid custom alias")
	ErrInvalidExpiry = errors.New("expiry must be in the future")
	ErrSpamDomain    = errors.New("destination domain is blacklisted")
)

// Коллизии кода. Занятый алиас и коллизия случайного кода различаются.
var (
	ErrAliasTaken    = errors.New("custom alias is already taken")
	ErrCodeCollision = errors.New("could not generate a unique short code")
)

func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidURL) ||
		errors.Is(err, ErrInvalidAlias) ||
		errors.Is(err, ErrInvalidExpiry) ||
		errors.Is(err, ErrSpamDomain)
}

func IsCollision(err error) bool {
	return errors.Is(err, ErrAliasTaken) || errors.Is(err, ErrCodeCollision)
}

package tools

import (
	"strings"
	"unicode/utf8"
)

// GetWordLength restituisce il numero di caratteri di word
func GetWordLength(word string) int {
	return utf8.RuneCountInString(word)
}

// ReverseWord restituisce word al contrario, carattere per carattere
func ReverseWord(word string) string {
	runes := []rune(word)
	for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
		runes[i], runes[j] = runes[j], runes[i]
	}
	return string(runes)
}

// CalculateArea restituisce l'area di un rettangolo
func CalculateArea(length, width float64) float64 {
	return length * width
}

// ToUpper converte text in maiuscolo
func ToUpper(text string) string {
	return strings.ToUpper(text)
}

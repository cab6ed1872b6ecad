package engine

import (
	"bufio"
	_ "embed"
	"strings"
	"sync"
)

//go:embed data/dictionary.txt
var embeddedDictionary string

var (
	dictionary     map[string]struct{}
	dictionaryOnce sync.Once
)

// loadDictionary parses the embedded word list into an uppercase set, once
// per process, grounded on word_validator.py's _load_dictionary (a set of
// uppercase words loaded once at startup) and items/loader.go's
// sync.Once-guarded singleton shape.
func loadDictionary() map[string]struct{} {
	dictionaryOnce.Do(func() {
		dictionary = make(map[string]struct{}, 4096)
		scanner := bufio.NewScanner(strings.NewReader(embeddedDictionary))
		for scanner.Scan() {
			word := strings.ToUpper(strings.TrimSpace(scanner.Text()))
			if word == "" {
				continue
			}
			dictionary[word] = struct{}{}
		}
	})
	return dictionary
}

func inDictionary(word string) bool {
	_, ok := loadDictionary()[word]
	return ok
}

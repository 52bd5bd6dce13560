package schema

import (
	"regexp"
	"sync"
)

var (
	patternCacheMu sync.Mutex
	patternCache   = map[string]*regexp.Regexp{}
)

// matchPattern compiles pattern (cached) and reports whether s matches it.
func matchPattern(pattern, s string) (bool, error) {
	patternCacheMu.Lock()
	re, ok := patternCache[pattern]
	patternCacheMu.Unlock()
	if !ok {
		compiled, err := regexp.Compile(pattern)
		if err != nil {
			return false, err
		}
		patternCacheMu.Lock()
		patternCache[pattern] = compiled
		patternCacheMu.Unlock()
		re = compiled
	}
	return re.MatchString(s), nil
}

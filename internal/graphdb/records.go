package graphdb

import (
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

func getStringFromRecord(record *neo4j.Record, key string) string {
	if val, ok := record.Get(key); ok && val != nil {
		if s, ok := val.(string); ok {
			return s
		}
	}
	return ""
}

func getInt64FromRecord(record *neo4j.Record, key string) int64 {
	if val, ok := record.Get(key); ok && val != nil {
		switch n := val.(type) {
		case int64:
			return n
		case float64:
			return int64(n)
		}
	}
	return 0
}

func getMapFromRecord(record *neo4j.Record, key string) map[string]any {
	if val, ok := record.Get(key); ok && val != nil {
		if m, ok := val.(map[string]any); ok {
			return m
		}
	}
	return nil
}

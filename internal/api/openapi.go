package api

import (
	"github.com/mattjoyce/lexgate/internal/dispatch"
)

// buildOpenAPIDoc returns an OpenAPI 3.1 document for the API, with the
// {lang} parameters restricted to the languages actually routed.
func buildOpenAPIDoc(langs dispatch.Languages) map[string]any {
	paths := map[string]any{
		"/languages": map[string]any{
			"get": operation("listLanguages", "Routed languages per provider", nil, nil),
		},
		"/grammar/{lang}": map[string]any{
			"post": operation("checkGrammar", "Check the first line of text",
				langParam(langs.Grammar),
				objectSchema("text")),
		},
		"/grammar/{lang}/preferences": map[string]any{
			"get": operation("listPreferences", "Error tags the grammar checker can report",
				langParam(langs.Grammar), nil),
		},
	}
	if len(langs.Speller) > 0 {
		paths["/speller/{lang}"] = map[string]any{
			"post": operation("checkSpelling", "Check one word",
				langParam(langs.Speller),
				objectSchema("word")),
		}
	}

	return map[string]any{
		"openapi": "3.1.0",
		"info": map[string]any{
			"title":   "lexgate",
			"version": "1.0",
		},
		"paths": paths,
		"components": map[string]any{
			"securitySchemes": map[string]any{
				"BearerAuth": map[string]any{
					"type":   "http",
					"scheme": "bearer",
				},
			},
		},
	}
}

func operation(id, summary string, param map[string]any, body map[string]any) map[string]any {
	op := map[string]any{
		"operationId": id,
		"summary":     summary,
		"responses": map[string]any{
			"200": map[string]any{"description": "OK"},
			"400": map[string]any{"description": "Bad request"},
			"403": map[string]any{"description": "Insufficient scope"},
		},
		"security": []any{map[string]any{"BearerAuth": []string{}}},
	}
	if param != nil {
		op["parameters"] = []any{param}
		responses := op["responses"].(map[string]any)
		responses["404"] = map[string]any{"description": "Unsupported language"}
		responses["503"] = map[string]any{"description": "Worker unavailable"}
	}
	if body != nil {
		op["requestBody"] = map[string]any{
			"required": true,
			"content": map[string]any{
				"application/json": map[string]any{"schema": body},
			},
		}
	}
	return op
}

func langParam(langs []string) map[string]any {
	schema := map[string]any{"type": "string"}
	if len(langs) > 0 {
		schema["enum"] = langs
	}
	return map[string]any{
		"name":     "lang",
		"in":       "path",
		"required": true,
		"schema":   schema,
	}
}

func objectSchema(field string) map[string]any {
	return map[string]any{
		"type":     "object",
		"required": []string{field},
		"properties": map[string]any{
			field: map[string]any{"type": "string"},
		},
	}
}

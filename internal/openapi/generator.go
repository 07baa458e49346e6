package openapi

import (
	"net/http"
	"strconv"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/ngajidev/keygate/internal/model"
)

// Version is the API version reported in generated documents.
const Version = "1.0.0"

// GenerateAuthSpec describes the auth service: sessions, verification and
// API key management.
func GenerateAuthSpec(baseURL string) *openapi3.T {
	doc := newDoc("keygate auth API",
		"Issues session tokens, manages API keys and verifies credentials for other services.",
		baseURL)

	doc.Components.Schemas["TokenPair"] = object(map[string]*openapi3.Schema{
		"access":     openapi3.NewStringSchema(),
		"refresh":    openapi3.NewStringSchema(),
		"token_type": openapi3.NewStringSchema().WithEnum("bearer"),
		"expires_in": openapi3.NewIntegerSchema(),
	}, "access", "refresh")
	doc.Components.Schemas["APIKey"] = object(map[string]*openapi3.Schema{
		"id":         openapi3.NewInt64Schema(),
		"name":       openapi3.NewStringSchema(),
		"prefix":     openapi3.NewStringSchema(),
		"permission": permissionSchema(),
		"expires_at": openapi3.NewDateTimeSchema(),
		"created_at": openapi3.NewDateTimeSchema(),
	}, "id", "name", "permission", "created_at")

	created := object(map[string]*openapi3.Schema{
		"id":         openapi3.NewInt64Schema(),
		"name":       openapi3.NewStringSchema(),
		"prefix":     openapi3.NewStringSchema(),
		"permission": permissionSchema(),
		"expires_at": openapi3.NewDateTimeSchema(),
		"created_at": openapi3.NewDateTimeSchema(),
		"api_key": &openapi3.Schema{
			Type:        &openapi3.Types{"string"},
			Description: "Plaintext key. Returned only by this response.",
		},
	}, "id", "api_key")

	login := &openapi3.Operation{
		Tags:        []string{"auth"},
		Summary:     "Log in with username and password",
		OperationID: "login",
		Security:    public(),
		RequestBody: jsonBody(object(map[string]*openapi3.Schema{
			"username": openapi3.NewStringSchema(),
			"password": openapi3.NewStringSchema(),
		}, "username", "password")),
		Responses: newResponses(http.StatusOK, "Token pair", ref("TokenPair"),
			http.StatusBadRequest, http.StatusUnauthorized),
	}

	refresh := &openapi3.Operation{
		Tags:        []string{"auth"},
		Summary:     "Exchange a refresh token for a new pair",
		Description: "At most 5 attempts per token within 15 minutes; further attempts get 429 before the token is checked.",
		OperationID: "refresh",
		Security:    public(),
		RequestBody: jsonBody(object(map[string]*openapi3.Schema{
			"refresh": openapi3.NewStringSchema(),
		}, "refresh")),
		Responses: newResponses(http.StatusOK, "Token pair", ref("TokenPair"),
			http.StatusBadRequest, http.StatusUnauthorized, http.StatusTooManyRequests),
	}

	verify := &openapi3.Operation{
		Tags:        []string{"auth"},
		Summary:     "Verify the credential in the Authorization header",
		Description: "Reachable from trusted networks only. Answers 200 with a valid result or 401 with the rejection reason.",
		OperationID: "verify",
		Security:    public(),
		Parameters: openapi3.Parameters{
			{Value: &openapi3.Parameter{
				Name:        "Authorization",
				In:          openapi3.ParameterInHeader,
				Description: "'Bearer <token>' or 'ApiKey <key>'",
				Schema:      openapi3.NewSchemaRef("", openapi3.NewStringSchema()),
			}},
		},
		Responses: newResponses(http.StatusOK, "Valid credential", ref("VerifyResult"),
			http.StatusForbidden, http.StatusServiceUnavailable),
	}
	invalidDesc := "Rejected credential"
	verify.Responses.Set("401", &openapi3.ResponseRef{Value: &openapi3.Response{
		Description: &invalidDesc,
		Content:     openapi3.NewContentWithJSONSchemaRef(ref("VerifyResult")),
	}})

	me := &openapi3.Operation{
		Tags:        []string{"auth"},
		Summary:     "Describe the authenticated principal",
		OperationID: "me",
		Responses: newResponses(http.StatusOK, "Principal", ref("VerifyResult"),
			http.StatusUnauthorized),
	}

	doc.Paths.Set("/api/v1/auth/login", &openapi3.PathItem{Post: login})
	doc.Paths.Set("/api/v1/auth/refresh", &openapi3.PathItem{Post: refresh})
	doc.Paths.Set("/api/v1/auth/verify", &openapi3.PathItem{Post: verify})
	doc.Paths.Set("/api/v1/auth/me", &openapi3.PathItem{Get: me})

	sessionOnly := &openapi3.SecurityRequirements{{"bearerAuth": {}}}
	doc.Paths.Set("/api/v1/keys", &openapi3.PathItem{
		Get: &openapi3.Operation{
			Tags:        []string{"keys"},
			Summary:     "List the caller's active API keys",
			OperationID: "listKeys",
			Security:    sessionOnly,
			Responses:   newResponses(http.StatusOK, "Active keys", listOf(ref("APIKey")), http.StatusUnauthorized, http.StatusForbidden),
		},
		Post: &openapi3.Operation{
			Tags:        []string{"keys"},
			Summary:     "Create an API key",
			OperationID: "createKey",
			Security:    sessionOnly,
			RequestBody: jsonBody(object(map[string]*openapi3.Schema{
				"name":            openapi3.NewStringSchema().WithMaxLength(100),
				"permission":      permissionSchema(),
				"expires_in_days": openapi3.NewIntegerSchema().WithNullable(),
			}, "name")),
			Responses: newResponses(http.StatusCreated, "Created key with its plaintext secret",
				created,
				http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden),
		},
	})
	doc.Paths.Set("/api/v1/keys/{keyId}", &openapi3.PathItem{
		Delete: &openapi3.Operation{
			Tags:        []string{"keys"},
			Summary:     "Revoke an API key",
			OperationID: "revokeKey",
			Security:    sessionOnly,
			Parameters: openapi3.Parameters{
				{Value: openapi3.NewPathParameter("keyId").WithSchema(openapi3.NewInt64Schema())},
			},
			Responses: newResponses(http.StatusOK, "Revoked", openapi3.NewSchemaRef("", openapi3.NewObjectSchema()),
				http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound),
		},
	})

	return doc
}

// GenerateDataSpec describes the data service's attendance resource.
func GenerateDataSpec(baseURL string) *openapi3.T {
	doc := newDoc("keygate data API",
		"Attendance records. Every request is authenticated through the auth service.",
		baseURL)

	doc.Components.Schemas["Attendance"] = object(map[string]*openapi3.Schema{
		"id":          openapi3.NewInt64Schema(),
		"name":        openapi3.NewStringSchema(),
		"session":     openapi3.NewStringSchema(),
		"status":      openapi3.NewStringSchema().WithEnum("present", "absent", "late", "excused"),
		"recorded_by": openapi3.NewInt64Schema(),
		"created_at":  openapi3.NewDateTimeSchema(),
	}, "id", "name", "session", "status")

	doc.Paths.Set("/api/v1/attendance", &openapi3.PathItem{
		Get: &openapi3.Operation{
			Tags:        []string{"attendance"},
			Summary:     "List attendance marks (read capability)",
			OperationID: "listAttendance",
			Parameters: openapi3.Parameters{
				{Value: openapi3.NewQueryParameter("session").WithSchema(openapi3.NewStringSchema())},
				{Value: openapi3.NewQueryParameter("limit").WithSchema(openapi3.NewIntegerSchema().WithMin(1).WithMax(1000))},
			},
			Responses: newResponses(http.StatusOK, "Attendance marks", listOf(ref("Attendance")),
				http.StatusUnauthorized, http.StatusForbidden, http.StatusServiceUnavailable),
		},
		Post: &openapi3.Operation{
			Tags:        []string{"attendance"},
			Summary:     "Record an attendance mark (write capability)",
			OperationID: "createAttendance",
			RequestBody: jsonBody(object(map[string]*openapi3.Schema{
				"name":    openapi3.NewStringSchema(),
				"session": openapi3.NewStringSchema(),
				"status":  openapi3.NewStringSchema(),
			}, "name", "session")),
			Responses: newResponses(http.StatusCreated, "Recorded", ref("Attendance"),
				http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusServiceUnavailable),
		},
	})

	return doc
}

// newDoc builds the skeleton shared by both services: security schemes and
// the error and verification schemas.
func newDoc(title, description, baseURL string) *openapi3.T {
	doc := &openapi3.T{
		OpenAPI: "3.1.0",
		Info: &openapi3.Info{
			Title:       title,
			Description: description,
			Version:     Version,
		},
		Servers: openapi3.Servers{
			{URL: baseURL},
		},
	}

	components := openapi3.NewComponents()
	components.Schemas = openapi3.Schemas{}
	components.SecuritySchemes = openapi3.SecuritySchemes{}
	doc.Components = &components

	doc.Components.SecuritySchemes["apiKey"] = &openapi3.SecuritySchemeRef{
		Value: &openapi3.SecurityScheme{
			Type:        "apiKey",
			In:          "header",
			Name:        "Authorization",
			Description: "Send 'ApiKey <key>'.",
		},
	}
	doc.Components.SecuritySchemes["bearerAuth"] = &openapi3.SecuritySchemeRef{
		Value: &openapi3.SecurityScheme{
			Type:         "http",
			Scheme:       "bearer",
			BearerFormat: "JWT",
		},
	}
	doc.Security = openapi3.SecurityRequirements{
		{"apiKey": {}},
		{"bearerAuth": {}},
	}

	doc.Components.Schemas["ErrorResponse"] = object(map[string]*openapi3.Schema{
		"error": object(map[string]*openapi3.Schema{
			"code":    openapi3.NewInt32Schema(),
			"reason":  openapi3.NewStringSchema(),
			"message": openapi3.NewStringSchema(),
		}, "code", "message").Value,
	}, "error")

	doc.Components.Schemas["VerifyResult"] = object(map[string]*openapi3.Schema{
		"valid":      openapi3.NewBoolSchema(),
		"owner":      openapi3.NewInt64Schema(),
		"permission": permissionSchema(),
		"key_id":     openapi3.NewInt64Schema(),
		"scheme":     openapi3.NewStringSchema().WithEnum("bearer", "apikey"),
		"cached":     openapi3.NewBoolSchema(),
		"error": openapi3.NewStringSchema().WithEnum(
			"format_error", "invalid_or_revoked", "expired",
			"user_not_found", "unsupported_scheme", "invalid_token"),
	}, "valid")

	doc.Paths = openapi3.NewPaths()
	return doc
}

func permissionSchema() *openapi3.Schema {
	values := make([]any, 0, len(model.Permissions))
	for _, p := range model.Permissions {
		values = append(values, string(p))
	}
	return openapi3.NewStringSchema().WithEnum(values...)
}

func object(props map[string]*openapi3.Schema, required ...string) *openapi3.SchemaRef {
	s := openapi3.NewObjectSchema()
	for name, p := range props {
		s.WithProperty(name, p)
	}
	if len(required) > 0 {
		s.WithRequired(required)
	}
	return openapi3.NewSchemaRef("", s)
}

func ref(name string) *openapi3.SchemaRef {
	return openapi3.NewSchemaRef("#/components/schemas/"+name, nil)
}

func listOf(item *openapi3.SchemaRef) *openapi3.SchemaRef {
	return &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type: &openapi3.Types{"object"},
			Properties: openapi3.Schemas{
				"resource": &openapi3.SchemaRef{
					Value: &openapi3.Schema{
						Type:  &openapi3.Types{"array"},
						Items: item,
					},
				},
				"meta": object(map[string]*openapi3.Schema{
					"count": openapi3.NewIntegerSchema(),
				}),
			},
		},
	}
}

func jsonBody(schema *openapi3.SchemaRef) *openapi3.RequestBodyRef {
	return &openapi3.RequestBodyRef{
		Value: openapi3.NewRequestBody().WithRequired(true).WithJSONSchemaRef(schema),
	}
}

// public marks an operation as requiring no credentials.
func public() *openapi3.SecurityRequirements {
	return &openapi3.SecurityRequirements{}
}

// newResponses builds the success response followed by the listed error
// statuses, all using the shared error envelope.
func newResponses(status int, description string, schema *openapi3.SchemaRef, errorStatuses ...int) *openapi3.Responses {
	responses := openapi3.NewResponses(openapi3.WithStatus(status, &openapi3.ResponseRef{
		Value: openapi3.NewResponse().
			WithDescription(description).
			WithContent(openapi3.NewContentWithJSONSchemaRef(schema)),
	}))

	errorRef := ref("ErrorResponse")
	for _, code := range errorStatuses {
		desc := http.StatusText(code)
		responses.Set(strconv.Itoa(code), &openapi3.ResponseRef{
			Value: &openapi3.Response{
				Description: &desc,
				Content:     openapi3.NewContentWithJSONSchemaRef(errorRef),
			},
		})
	}
	return responses
}

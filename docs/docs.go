// Package docs registra la definición OpenAPI del servicio para /swagger.
// Se regenera con `swag init -g cmd/medremind/main.go`.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/patients/{patientID}/medications": {
            "get": {
                "produces": ["application/json"],
                "tags": ["medications"],
                "summary": "Listar medicamentos del paciente",
                "parameters": [
                    {"type": "string", "description": "ID del paciente", "name": "patientID", "in": "path", "required": true},
                    {"type": "boolean", "description": "Incluir inactivos", "name": "include_inactive", "in": "query"}
                ],
                "responses": {"200": {"description": "OK"}, "403": {"description": "forbidden"}}
            },
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["medications"],
                "summary": "Crear medicamento con horarios",
                "parameters": [
                    {"type": "string", "description": "ID del paciente", "name": "patientID", "in": "path", "required": true}
                ],
                "responses": {"201": {"description": "Created"}, "400": {"description": "invalid input"}, "403": {"description": "forbidden"}}
            }
        },
        "/patients/{patientID}/medications/{medicationID}": {
            "get": {"tags": ["medications"], "summary": "Obtener medicamento", "responses": {"200": {"description": "OK"}, "404": {"description": "medication not found"}}},
            "patch": {"tags": ["medications"], "summary": "Editar medicamento u horarios", "responses": {"200": {"description": "OK"}, "409": {"description": "medication is inactive"}}},
            "delete": {"tags": ["medications"], "summary": "Desactivar medicamento", "responses": {"200": {"description": "OK"}}}
        },
        "/patients/{patientID}/medications/{medicationID}/actions": {
            "post": {
                "tags": ["doses"],
                "summary": "Registrar acción sobre una dosis",
                "responses": {"201": {"description": "Created"}, "409": {"description": "dose slot already resolved"}, "429": {"description": "too many requests"}}
            }
        },
        "/patients/{patientID}/logs": {
            "get": {"tags": ["doses"], "summary": "Historial de tomas", "responses": {"200": {"description": "OK"}}}
        },
        "/patients/{patientID}/occurrences": {
            "get": {"tags": ["occurrences"], "summary": "Dosis pendientes", "responses": {"200": {"description": "OK"}, "503": {"description": "couldn't determine next dose"}}}
        },
        "/patients/{patientID}/occurrences/next": {
            "get": {"tags": ["occurrences"], "summary": "Próxima dosis", "responses": {"200": {"description": "OK"}}}
        },
        "/patients/{patientID}/caregivers": {
            "get": {"tags": ["caregivers"], "summary": "Listar cuidadores del paciente", "responses": {"200": {"description": "OK"}}},
            "post": {"tags": ["caregivers"], "summary": "Invitar cuidador", "responses": {"201": {"description": "Created"}}}
        },
        "/caregiver-grants/{grantID}/accept": {
            "post": {"tags": ["caregivers"], "summary": "Aceptar invitación", "responses": {"200": {"description": "OK"}}}
        },
        "/caregiver-grants/{grantID}/revoke": {
            "post": {"tags": ["caregivers"], "summary": "Revocar acceso", "responses": {"200": {"description": "OK"}}}
        },
        "/me/caregiving": {
            "get": {"tags": ["caregivers"], "summary": "Pacientes que cuido", "responses": {"200": {"description": "OK"}}}
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Medication Reminder API",
	Description:      "Horarios de medicación, registro de tomas y próximas dosis.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}

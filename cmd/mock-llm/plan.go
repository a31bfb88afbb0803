package main

import (
	"encoding/json"
	"fmt"
	"strings"
)

type plannedTask struct {
	Title          string  `json:"title"`
	Description    string  `json:"description"`
	EstimatedHours float64 `json:"estimatedHours"`
	Priority       string  `json:"priority"`
}

// planSteps are expanded with the project name into a synthesized plan.
var planSteps = []plannedTask{
	{"Definir alcance de %s", "Reunir requisitos y acordar el alcance de %s con los interesados.", 6, "High"},
	{"Diseñar arquitectura de %s", "Elegir componentes, datos e integraciones para %s.", 10, "High"},
	{"Preparar entorno de %s", "Configurar repositorio, CI y entornos de prueba para %s.", 4, "Medium"},
	{"Implementar núcleo de %s", "Desarrollar las funcionalidades principales de %s.", 24, "Critical"},
	{"Integrar servicios de %s", "Conectar %s con los servicios externos necesarios.", 12, "Medium"},
	{"Probar %s", "Escribir y ejecutar pruebas funcionales y de regresión de %s.", 10, "High"},
	{"Documentar %s", "Redactar la documentación de uso y operación de %s.", 5, "Low"},
	{"Desplegar %s", "Publicar %s en producción y verificar el despliegue.", 4, "Medium"},
}

// synthesizePlan builds a task list from the prompt's "Proyecto:" and
// "Categoría:" lines, wrapped in a json code fence like a chat model would.
func synthesizePlan(prompt string) string {
	name := promptField(prompt, "Proyecto:")
	if name == "" {
		name = "el proyecto"
	}
	category := promptField(prompt, "Categoría:")

	tasks := make([]plannedTask, 0, len(planSteps))
	for _, step := range planSteps {
		desc := fmt.Sprintf(step.Description, name)
		if category != "" {
			desc += " Categoría: " + category + "."
		}
		tasks = append(tasks, plannedTask{
			Title:          fmt.Sprintf(step.Title, name),
			Description:    desc,
			EstimatedHours: step.EstimatedHours,
			Priority:       step.Priority,
		})
	}

	body, _ := json.MarshalIndent(map[string]any{"tasks": tasks}, "", "  ")
	return "Aquí está el plan:\n```json\n" + string(body) + "\n```"
}

func promptField(prompt, label string) string {
	for _, line := range strings.Split(prompt, "\n") {
		if v, ok := strings.CutPrefix(strings.TrimSpace(line), label); ok {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func lastUserMessage(msgs []chatMessage) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == "user" {
			return msgs[i].Content
		}
	}
	return ""
}

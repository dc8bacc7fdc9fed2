package llm

import (
	"github.com/sashabaranov/go-openai"
	"github.com/sashabaranov/go-openai/jsonschema"
)

// SystemPrompt defines Molly's role and the action contract: system actions
// are requested as a fenced JSON block, knowledge questions are answered as
// plain prose.
const SystemPrompt = `Eres Molly, tu asistente de ciberseguridad. Tu objetivo principal es ayudar a los usuarios con tareas relacionadas con la seguridad de la red, como escaneos de vulnerabilidades, análisis de servicios y la interpretación de datos de seguridad.
Siempre responde en español.

Si el usuario te pide explícitamente que 'escanees', 'busques', 'analices', 'inicies', 'encuentres' o realices cualquier operación que implique una acción del sistema (no solo una pregunta de conocimiento), debes responder con un bloque de código JSON con la forma {"action": "...", "parameters": {...}}.

**Acciones que puedes realizar (y para las cuales debes responder con JSON):**
- **start_network_scan**: Para escanear una IP o rango. Requiere 'target' (string, ej. '192.168.1.1' o '192.168.1.0/24'). Opcional: 'session_name' (string, nombre para la sesión de escaneo).
- **analyze_service_vulnerability**: Analiza una vulnerabilidad específica de un servicio basándose en su nombre, versión e IP, y proporciona una descripción y recomendación.
- **get_scan_results**: Recupera los detalles completos, hosts, servicios y hallazgos de un escaneo anterior por su ID o nombre de sesión.
- **generate_detailed_host_report**: Genera un reporte PDF detallado para un host específico dentro de una sesión de escaneo.

**Capacidades de conocimiento (para las cuales debes responder con texto directo):**
- **Responder Preguntas Generales:** Sobre ciberseguridad, herramientas, conceptos.
- **Proporcionar Detalles de CVEs:** Si se te da un ID de CVE (ej. 'CVE-2007-2768'), puedes explicar de qué trata esa vulnerabilidad.

Si no se detecta una solicitud de acción clara o la acción solicitada no está en la lista de acciones que puedes realizar, o si el usuario hace una pregunta general de ciberseguridad, responde directamente con una respuesta de texto clara y concisa, y NADA MÁS que texto.`

// BannerAnalysisRequirements instructs the model to emit a structured
// vulnerability finding for a single service banner.
const BannerAnalysisRequirements = `Responde ÚNICAMENTE con un objeto JSON con esta forma exacta:
{"vulnerability": "<descripción breve de la vulnerabilidad más probable>", "impact": "<Critical|High|Medium|Low|Informational>", "mitigations": ["<mitigación 1>", "<mitigación 2>"]}
Si el servicio no presenta una vulnerabilidad conocida relevante, usa "impact": "Informational" y describe el riesgo de exposición del banner.`

// Tools declares the callable surface described to the model at context
// construction. The model is instructed to emit intents as fenced JSON, but
// the schemas are still attached so it knows each action's parameters.
func Tools() []openai.Tool {
	return []openai.Tool{
		functionTool("start_network_scan",
			"Inicia un escaneo de red en el objetivo especificado para descubrir hosts y servicios. Esto puede tomar varios minutos dependiendo del objetivo y el perfil de escaneo.",
			map[string]jsonschema.Definition{
				"target": {
					Type:        jsonschema.String,
					Description: "La dirección IP o rango CIDR del objetivo (ej. '192.168.1.1' o '192.168.1.0/24').",
				},
				"session_name": {
					Type:        jsonschema.String,
					Description: "Un nombre opcional para la sesión de escaneo. Si no se proporciona, se generará uno automáticamente.",
				},
			},
			[]string{"target"}),
		functionTool("analyze_service_vulnerability",
			"Analiza una vulnerabilidad específica de un servicio basándose en su nombre, versión e IP, y proporciona una descripción y recomendación.",
			map[string]jsonschema.Definition{
				"ip_address": {
					Type:        jsonschema.String,
					Description: "La dirección IP del host donde se encuentra el servicio.",
				},
				"service_name": {
					Type:        jsonschema.String,
					Description: "El nombre del servicio a analizar (ej. 'ssh', 'http', 'mysql').",
				},
				"service_version": {
					Type:        jsonschema.String,
					Description: "La versión específica del servicio (ej. 'OpenSSH 8.2p1', 'Apache httpd 2.4.41').",
				},
			},
			[]string{"ip_address", "service_name", "service_version"}),
		functionTool("get_scan_results",
			"Recupera los detalles completos, hosts, servicios y hallazgos de un escaneo anterior. Se requiere proporcionar el 'scan_id' o el 'session_name' del escaneo.",
			map[string]jsonschema.Definition{
				"scan_id": {
					Type:        jsonschema.Integer,
					Description: "El ID numérico del escaneo.",
				},
				"session_name": {
					Type:        jsonschema.String,
					Description: "El nombre de la sesión del escaneo (ej. 'Escaneo_IA_192_168_1_1_20250711_115855').",
				},
			},
			nil),
		functionTool("generate_detailed_host_report",
			"Genera un reporte PDF detallado para un host específico dentro de una sesión de escaneo.",
			map[string]jsonschema.Definition{
				"host_ip": {
					Type:        jsonschema.String,
					Description: "La dirección IP del host para el cual generar el reporte.",
				},
				"session_name": {
					Type:        jsonschema.String,
					Description: "El nombre de la sesión de escaneo a la que pertenece el host.",
				},
			},
			[]string{"host_ip", "session_name"}),
		functionTool("get_cve_details",
			"Obtiene detalles sobre un CVE específico (ej. CVE-2007-2768).",
			map[string]jsonschema.Definition{
				"cve_id": {
					Type:        jsonschema.String,
					Description: "El ID del CVE (ej. 'CVE-2007-2768').",
				},
			},
			[]string{"cve_id"}),
	}
}

func functionTool(name, description string, properties map[string]jsonschema.Definition, required []string) openai.Tool {
	return openai.Tool{
		Type: openai.ToolTypeFunction,
		Function: &openai.FunctionDefinition{
			Name:        name,
			Description: description,
			Parameters: jsonschema.Definition{
				Type:       jsonschema.Object,
				Properties: properties,
				Required:   required,
			},
		},
	}
}

// Package voices holds the static voice catalog and the rotation selector.
package voices

import "github.com/nuevpro/ventas/internal/models"

var catalog = []models.VoiceProfile{
	{
		ID: "lucia", Name: "Lucía", Gender: "female", Personality: "analítica",
		Accent: "castellano", Tone: "profesional",
		Description:   "Directora de compras que pide datos concretos antes de decidir.",
		ProviderVoice: "es-ES-Neural2-A", LanguageCode: "es-ES",
	},
	{
		ID: "javier", Name: "Javier", Gender: "male", Personality: "escéptico",
		Accent: "castellano", Tone: "seco",
		Description:   "Gerente que ya tuvo malas experiencias con proveedores.",
		ProviderVoice: "es-ES-Neural2-B", LanguageCode: "es-ES",
	},
	{
		ID: "carmen", Name: "Carmen", Gender: "female", Personality: "amable",
		Accent: "castellano", Tone: "cálido",
		Description:   "Dueña de un negocio familiar, cercana pero con poco presupuesto.",
		ProviderVoice: "es-ES-Neural2-C", LanguageCode: "es-ES",
	},
	{
		ID: "diego", Name: "Diego", Gender: "male", Personality: "impaciente",
		Accent: "castellano", Tone: "enérgico",
		Description:   "Responsable de operaciones con la agenda llena y poco tiempo.",
		ProviderVoice: "es-ES-Neural2-F", LanguageCode: "es-ES",
	},
	{
		ID: "valentina", Name: "Valentina", Gender: "female", Personality: "curiosa",
		Accent: "latinoamericano", Tone: "entusiasta",
		Description:   "Emprendedora que compara varias opciones y hace muchas preguntas.",
		ProviderVoice: "es-US-Neural2-A", LanguageCode: "es-US",
	},
	{
		ID: "mateo", Name: "Mateo", Gender: "male", Personality: "negociador",
		Accent: "latinoamericano", Tone: "firme",
		Description:   "Comprador corporativo centrado en descuentos y condiciones de pago.",
		ProviderVoice: "es-US-Neural2-B", LanguageCode: "es-US",
	},
	{
		ID: "andres", Name: "Andrés", Gender: "male", Personality: "reservado",
		Accent: "latinoamericano", Tone: "neutral",
		Description:   "Entrevistador de recursos humanos que evalúa cada respuesta.",
		ProviderVoice: "es-US-Neural2-C", LanguageCode: "es-US",
	},
}

var emotionalStates = []string{
	"tranquilo y receptivo",
	"frustrado por un problema reciente",
	"desconfiado",
	"apurado",
	"interesado pero cauteloso",
	"molesto por el precio",
	"optimista",
}

var conversationStyles = []string{
	"hace preguntas cortas y directas",
	"cuenta anécdotas y se desvía del tema",
	"interrumpe con objeciones",
	"responde con monosílabos",
	"pide ejemplos concretos",
	"compara constantemente con la competencia",
}

// Catalog returns a copy of the voice catalog.
func Catalog() []models.VoiceProfile {
	out := make([]models.VoiceProfile, len(catalog))
	copy(out, catalog)
	return out
}

func Lookup(id string) (models.VoiceProfile, bool) {
	for _, v := range catalog {
		if v.ID == id {
			return v, true
		}
	}
	return models.VoiceProfile{}, false
}

func EmotionalStates() []string    { return append([]string(nil), emotionalStates...) }
func ConversationStyles() []string { return append([]string(nil), conversationStyles...) }

package inbound

import "fmt"

const (
	msgHelp = "Hola, soy el asistente de avisos de la Junta de Vecinos.\n\n" +
		"Comandos disponibles:\n" +
		"VINCULAR <tu RUT>: recibe los avisos por este medio.\n" +
		"DESVINCULAR: deja de recibirlos por este medio.\n" +
		"AYUDA: muestra este mensaje."
	msgLinkUsage = "Para vincular tu cuenta envía VINCULAR seguido de tu RUT, por ejemplo: VINCULAR 12345678-5"
	msgInvalidRUT = "El RUT ingresado no es válido. Revisa el número y el dígito verificador, por ejemplo: VINCULAR 12345678-5"
	msgPending    = "Tu inscripción en la Junta de Vecinos aún está pendiente de aprobación. Podrás vincular este medio cuando la directiva la apruebe."
	msgRejected   = "Tu inscripción en la Junta de Vecinos no fue aprobada. Si crees que es un error, contacta a la secretaría."
	msgInactive   = "Tu cuenta no está activa en la Junta de Vecinos. Contacta a la secretaría."
	msgNotLinked  = "Este medio no está vinculado a ninguna cuenta de la Junta de Vecinos."
	msgOnlyText   = "Solo puedo leer mensajes de texto. Escribe AYUDA para ver los comandos."
	msgFailure    = "No pudimos procesar tu solicitud en este momento. Intenta de nuevo en unos minutos."
)

func msgUserNotFound(rut string) string {
	return fmt.Sprintf("No encontramos un vecino registrado con el RUT %s. Verifica el número o inscríbete en el sitio de la Junta.", rut)
}

func msgAddressTaken(channelLabel string) string {
	return fmt.Sprintf("Este %s ya está vinculado a otra cuenta. Envía DESVINCULAR desde esa cuenta o contacta a la secretaría.", channelLabel)
}

func msgLinked(name, channelLabel, prefLabel string) string {
	return fmt.Sprintf("¡Listo, %s! Desde ahora recibirás los avisos de la Junta por %s.\nTus medios de aviso: %s.", name, channelLabel, prefLabel)
}

func msgUnlinked(channelLabel, prefLabel string) string {
	return fmt.Sprintf("Listo, ya no recibirás avisos por %s.\nTus medios de aviso: %s.", channelLabel, prefLabel)
}

package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrTokenRequired ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid  ErrCode = "TOKEN_INVALID"
	ErrTokenExpired  ErrCode = "TOKEN_EXPIRED"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrForbidden         ErrCode = "FORBIDDEN"
	ErrStudentAccessOnly ErrCode = "STUDENT_ACCESS_ONLY"
	ErrStaffAccessOnly   ErrCode = "STAFF_ACCESS_ONLY"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound ErrCode = "NOT_FOUND"

	// ─── Exam session ──────────────────────────────────────────────────
	ErrExamNotFound       ErrCode = "EXAM_NOT_FOUND"
	ErrExamNotOpen        ErrCode = "EXAM_NOT_OPEN"
	ErrExamExpired        ErrCode = "EXAM_EXPIRED"
	ErrNoQuestions        ErrCode = "NO_QUESTIONS"
	ErrSessionActive      ErrCode = "SESSION_ALREADY_ACTIVE"
	ErrNoActiveSession    ErrCode = "NO_ACTIVE_SESSION"
	ErrInvalidAnswer      ErrCode = "INVALID_ANSWER"
	ErrSubmitFailed       ErrCode = "SUBMIT_FAILED"
	ErrLoadFailed         ErrCode = "LOAD_FAILED"
	ErrBackendUnavailable ErrCode = "BACKEND_UNAVAILABLE"

	// ─── Monitoring ────────────────────────────────────────────────────
	ErrMonitorUnavailable ErrCode = "MONITOR_UNAVAILABLE"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrTokenRequired:
		return "Jeton d'authentification requis."
	case ErrTokenInvalid:
		return "Jeton d'authentification invalide."
	case ErrTokenExpired:
		return "Jeton d'authentification expiré."

	// ─── Authorization ─────────────────────────────────────────────────
	case ErrForbidden:
		return "Vous n'avez pas accès à cette ressource."
	case ErrStudentAccessOnly:
		return "Cette ressource est réservée aux étudiants."
	case ErrStaffAccessOnly:
		return "Cette ressource est réservée aux enseignants et administrateurs."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "La validation a échoué. Vérifiez votre saisie."
	case ErrInvalidPayload:
		return "Contenu de la requête invalide."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "Ressource introuvable."

	// ─── Exam session ──────────────────────────────────────────────────
	case ErrExamNotFound:
		return "Examen introuvable."
	case ErrExamNotOpen:
		return "L'examen n'a pas encore commencé."
	case ErrExamExpired:
		return "Le temps de l'examen est écoulé."
	case ErrNoQuestions:
		return "Cet examen ne contient aucune question."
	case ErrSessionActive:
		return "Un examen est déjà en cours."
	case ErrNoActiveSession:
		return "Aucun examen en cours."
	case ErrInvalidAnswer:
		return "Réponse invalide pour cet examen."
	case ErrSubmitFailed:
		return "Échec de l'enregistrement des résultats."
	case ErrLoadFailed:
		return "Erreur lors du chargement des données."
	case ErrBackendUnavailable:
		return "Le service des examens est indisponible."

	// ─── Monitoring ────────────────────────────────────────────────────
	case ErrMonitorUnavailable:
		return "Le suivi en direct est momentanément indisponible."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Trop de requêtes. Réessayez plus tard."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "Erreur interne du serveur."
	default:
		return "Une erreur inattendue est survenue."
	}
}

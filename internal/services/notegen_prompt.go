package services

import (
	"fmt"
	"strings"
)

const noteSystemPrompt = `You are a clinical documentation assistant for primary-care consultations in India. You convert doctor-patient conversation transcripts into structured SOAP notes.

Rules:
- The transcript may be in Tamil, Telugu, Hindi, or English, possibly mixed. Write the note in English.
- subjective: patient-reported symptoms and history, one finding per item.
- objective: observable or measured findings (vitals, examination), one per item. If nothing was documented, state that examination findings were not recorded.
- assessment: clinical impressions or diagnoses discussed, one per item.
- plan: medications, investigations and follow-up. For medications fill medication, dosage and frequency; put the full instruction in text. For non-medication items leave medication empty and use text.
- entities: every clinically relevant term found in the transcript with its category.
- icd_codes: ICD-10 codes for the assessment items where a confident mapping exists, else an empty list.
- Never invent findings that are not in the transcript.`

var speakerLabels = map[int]string{1: "Doctor", 2: "Patient"}

func buildNoteUserPrompt(req NoteGenRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Consultation language: %s\n", req.Language)
	if req.PatientName != "" {
		fmt.Fprintf(&b, "Patient: %s\n", req.PatientName)
	}
	b.WriteString("\n")

	if len(req.Segments) > 0 {
		b.WriteString("Transcript (diarized):\n")
		for _, seg := range req.Segments {
			label, ok := speakerLabels[seg.SpeakerTag]
			if !ok {
				label = fmt.Sprintf("Speaker %d", seg.SpeakerTag)
			}
			fmt.Fprintf(&b, "%s: %s\n", label, seg.Text)
		}
	} else {
		b.WriteString("Transcript:\n")
		b.WriteString(req.Transcript)
		b.WriteString("\n")
	}
	return b.String()
}

package api

import (
	"encoding/base64"
	stderrors "errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/gmsas95/dosetrack/internal/errors"
	"github.com/gmsas95/dosetrack/internal/insights"
	"github.com/gmsas95/dosetrack/internal/meds"
	"github.com/gmsas95/dosetrack/internal/vitals"
)

// errorStatus maps domain errors to HTTP status codes.
func errorStatus(err error) int {
	switch {
	case stderrors.Is(err, errors.ErrValidation):
		return 400
	case stderrors.Is(err, errors.ErrMedicationNotFound):
		return 404
	case stderrors.Is(err, errors.ErrUnauthorized):
		return 401
	default:
		return 500
	}
}

func (s *Server) fail(c *fiber.Ctx, err error) error {
	status := errorStatus(err)
	if status >= 500 {
		s.logger.Error("Request failed", zap.String("path", c.Path()), zap.Error(err))
		return c.Status(status).JSON(fiber.Map{"error": "internal error"})
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error(), "code": errors.GetCode(err)})
}

// ==================== Medications ====================

// medicationView decorates a medication with display fields.
type medicationView struct {
	meds.Medication
	NextDoseLabel string `json:"next_dose_label"`
	Overdue       bool   `json:"overdue"`
}

func (s *Server) view(med meds.Medication, now time.Time) medicationView {
	return medicationView{
		Medication:    med,
		NextDoseLabel: meds.FormatRelative(med.NextDoseAt, now),
		Overdue:       meds.IsOverdue(&med, now),
	}
}

func (s *Server) handleListMedications(c *fiber.Ctx) error {
	now := s.clock.Now()
	list := s.store.List()
	out := make([]medicationView, 0, len(list))
	for _, med := range list {
		out = append(out, s.view(med, now))
	}
	return c.JSON(out)
}

func (s *Server) handleCreateMedication(c *fiber.Ctx) error {
	var req struct {
		Name           string `json:"name"`
		Dosage         string `json:"dosage"`
		Frequency      string `json:"frequency"`
		Form           string `json:"form"`
		RemainingUnits *int   `json:"remaining_units"`
		TotalUnits     *int   `json:"total_units"`
	}

	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request"})
	}

	med, err := s.store.Create(meds.CreateInput{
		Name:           req.Name,
		Dosage:         req.Dosage,
		Frequency:      meds.ParseFrequency(req.Frequency),
		Form:           meds.ParseForm(req.Form),
		RemainingUnits: req.RemainingUnits,
		TotalUnits:     req.TotalUnits,
	})
	if err != nil {
		return s.fail(c, err)
	}
	return c.Status(201).JSON(s.view(*med, s.clock.Now()))
}

func (s *Server) handleGetMedication(c *fiber.Ctx) error {
	med, err := s.store.Get(c.Params("id"))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(s.view(*med, s.clock.Now()))
}

func (s *Server) handleUpdateMedication(c *fiber.Ctx) error {
	var req struct {
		Name           *string    `json:"name"`
		Dosage         *string    `json:"dosage"`
		Frequency      *string    `json:"frequency"`
		Form           *string    `json:"form"`
		NextDoseAt     *time.Time `json:"next_dose_at"`
		RemainingUnits *int       `json:"remaining_units"`
		TotalUnits     *int       `json:"total_units"`
	}

	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request"})
	}

	in := meds.UpdateInput{
		Name:           req.Name,
		Dosage:         req.Dosage,
		NextDoseAt:     req.NextDoseAt,
		RemainingUnits: req.RemainingUnits,
		TotalUnits:     req.TotalUnits,
	}
	if req.Frequency != nil {
		freq := meds.ParseFrequency(*req.Frequency)
		in.Frequency = &freq
	}
	if req.Form != nil {
		form := meds.ParseForm(*req.Form)
		in.Form = &form
	}

	med, err := s.store.Update(c.Params("id"), in)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(s.view(*med, s.clock.Now()))
}

func (s *Server) handleDeleteMedication(c *fiber.Ctx) error {
	if err := s.store.Delete(c.Params("id")); err != nil {
		return s.fail(c, err)
	}
	return c.SendStatus(204)
}

func (s *Server) handleOverdue(c *fiber.Ctx) error {
	now := s.clock.Now()
	list := s.store.Overdue(now)
	out := make([]medicationView, 0, len(list))
	for _, med := range list {
		out = append(out, s.view(med, now))
	}
	return c.JSON(out)
}

// ==================== Doses and history ====================

func (s *Server) handleLogDose(c *fiber.Ctx) error {
	id := c.Params("id")
	if _, err := s.store.Get(id); err != nil {
		return s.fail(c, err)
	}

	if !s.doser.LogDose(id) {
		return c.Status(409).JSON(fiber.Map{"error": "dose already in progress"})
	}
	return c.Status(202).JSON(fiber.Map{"status": "scheduled"})
}

func (s *Server) handleMedicationHistory(c *fiber.Ctx) error {
	id := c.Params("id")
	if _, err := s.store.Get(id); err != nil {
		return s.fail(c, err)
	}
	entries := s.ledger.ForMedication(id)
	if entries == nil {
		entries = []meds.DoseLogEntry{}
	}
	return c.JSON(entries)
}

func (s *Server) handleHistory(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 0)
	entries := s.ledger.Entries()
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	if entries == nil {
		entries = []meds.DoseLogEntry{}
	}
	return c.JSON(entries)
}

// ==================== Insights ====================

func (s *Server) handleMedicationInsights(c *fiber.Ctx) error {
	med, err := s.store.Get(c.Params("id"))
	if err != nil {
		return s.fail(c, err)
	}
	summary := s.insights.MedicationSummary(c.Context(), med.Name)
	return c.JSON(fiber.Map{"medication_id": med.ID, "summary": summary})
}

func (s *Server) handleCheckInteractions(c *fiber.Ctx) error {
	var req struct {
		Names []string `json:"names"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request"})
	}

	// Default to the whole cabinet when no names are given.
	names := req.Names
	if len(names) == 0 {
		for _, med := range s.store.List() {
			names = append(names, med.Name)
		}
	}
	if len(names) < 2 {
		return c.Status(400).JSON(fiber.Map{"error": "at least two medications are required"})
	}

	report := s.insights.CheckInteractions(c.Context(), names)
	return c.JSON(fiber.Map{"names": names, "report": report})
}

func (s *Server) handleAnalyzeImage(c *fiber.Ctx) error {
	var req struct {
		ImageBase64 string `json:"image_base64"`
	}
	if err := c.BodyParser(&req); err != nil || req.ImageBase64 == "" {
		return c.Status(400).JSON(fiber.Map{"error": "image_base64 is required"})
	}

	image, err := base64.StdEncoding.DecodeString(req.ImageBase64)
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid base64 image"})
	}

	result := s.insights.AnalyzeImage(c.Context(), image)
	return c.JSON(fiber.Map{"result": result})
}

func (s *Server) handleFindProviders(c *fiber.Ctx) error {
	query := c.Query("q")
	if query == "" {
		return c.Status(400).JSON(fiber.Map{"error": "query parameter q is required"})
	}

	var geo *insights.Geo
	lat := c.QueryFloat("lat", 0)
	lng := c.QueryFloat("lng", 0)
	if lat != 0 || lng != 0 {
		geo = &insights.Geo{Latitude: lat, Longitude: lng}
	}

	result := s.insights.FindProviders(c.Context(), query, geo)
	return c.JSON(result)
}

// ==================== Vitals ====================

func (s *Server) handleListVitals(c *fiber.Ctx) error {
	metric := vitals.MetricType(c.Query("metric"))
	limit := c.QueryInt("limit", 0)
	readings := s.vitals.List(metric, limit)
	if readings == nil {
		readings = []vitals.Reading{}
	}
	return c.JSON(readings)
}

func (s *Server) handleRecordVital(c *fiber.Ctx) error {
	var req struct {
		Metric string `json:"metric"`
		Value  string `json:"value"`
		Note   string `json:"note"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request"})
	}

	reading, err := s.vitals.Record(vitals.MetricType(req.Metric), req.Value, req.Note, s.clock.Now())
	if err != nil {
		return s.fail(c, err)
	}
	return c.Status(201).JSON(reading)
}

func (s *Server) handleLatestVital(c *fiber.Ctx) error {
	metric := vitals.MetricType(c.Query("metric"))
	reading := s.vitals.Latest(metric)
	if reading == nil {
		return c.Status(404).JSON(fiber.Map{"error": "no readings for metric"})
	}
	return c.JSON(reading)
}

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/stemsi/exstem-examcore/internal/config"
	"github.com/stemsi/exstem-examcore/internal/database"
	"github.com/stemsi/exstem-examcore/internal/logger"
	"github.com/stemsi/exstem-examcore/internal/model"
	"github.com/stemsi/exstem-examcore/internal/repository"
	"github.com/stemsi/exstem-examcore/internal/service"
)

func main() {
	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	catalog := repository.NewExamCatalog(pool)
	attempts := repository.NewAttemptRepository(pool)
	examService := service.NewExamService(catalog, catalog, catalog, nil, attempts, attempts, log)

	fmt.Println("=== Seeding Demo Exam ===")

	pass := 60
	exam, err := examService.CreateExam(ctx, &model.CreateExamRequest{
		Title:           "Ujian Percobaan Kimia Dasar",
		DurationMinutes: 30,
		Disclaimer:      "Kerjakan secara mandiri. Waktu berjalan sejak ujian dimulai.",
		PassPercentage:  &pass,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create exam")
	}
	fmt.Printf("Created exam %q with ID: %s\n", exam.Title, exam.ID)

	questions := []model.AddQuestionRequest{
		{
			QuestionText:  "Lambang unsur natrium adalah?",
			OptionA:       "N",
			OptionB:       "Na",
			OptionC:       "Nt",
			OptionD:       "So",
			CorrectOption: "B",
			Marks:         1,
		},
		{
			QuestionText:  "Berapa nomor atom karbon?",
			OptionA:       "4",
			OptionB:       "8",
			OptionC:       "12",
			OptionD:       "6",
			CorrectOption: "D",
			Marks:         1,
		},
		{
			QuestionText:     "Manakah yang termasuk gas mulia?",
			OptionA:          "Neon",
			OptionB:          "Nitrogen",
			OptionC:          "Argon",
			OptionD:          "Oksigen",
			IsMultipleChoice: true,
			CorrectOptions:   []string{"A", "C"},
			Marks:            2,
		},
		{
			QuestionText:     "Manakah yang merupakan logam alkali?",
			OptionA:          "Litium",
			OptionB:          "Kalsium",
			OptionC:          "Kalium",
			OptionD:          "Besi",
			IsMultipleChoice: true,
			CorrectOptions:   []string{"A", "C"},
			Marks:            2,
		},
		{
			QuestionText:  "Rumus kimia air adalah?",
			OptionA:       "H2O",
			OptionB:       "CO2",
			OptionC:       "O2",
			OptionD:       "NaCl",
			CorrectOption: "A",
			Marks:         1,
		},
	}

	for i := range questions {
		n := i + 1
		questions[i].QuestionNumber = &n
		if _, err := examService.AddQuestion(ctx, exam.ID, &questions[i]); err != nil {
			log.Fatal().Err(err).Int("question_number", n).Msg("Failed to add question")
		}
	}

	fmt.Printf("Added %d questions. Done.\n", len(questions))
}

package main

import (
	"fmt"
	"log"

	"github.com/agrilink/chat-api/internal/config"
	"github.com/agrilink/chat-api/internal/model"
	"github.com/agrilink/chat-api/internal/repository"
	"github.com/agrilink/chat-api/pkg/auth"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Seeds demo users with follow/block edges and prints a dev JWT per user.
// Identity normally lives in the platform's auth service; this gives a
// local instance something to chat with.
func main() {
	cfg := config.Load()

	db, err := gorm.Open(postgres.Open(cfg.DB.DSN()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	log.Println("connected to database")

	jwtManager := auth.NewJWTManager(cfg.JWT.Secret, cfg.JWT.Expiry)
	socialRepo := repository.NewSocialRepository(db)

	log.Println("seeding demo users...")
	users := make([]model.User, 0, 6)
	for i := 1; i <= 5; i++ {
		name := fmt.Sprintf("Farmer %d", i)
		user := seedUser(db, name, model.UserRoleUser)
		users = append(users, user)
	}
	expert := seedUser(db, "Dr. Patel (Agronomist)", model.UserRoleExpert)
	users = append(users, expert)

	// Mutual follows between farmers 1-3, one-way 4 -> 1, and 5 blocked by 1
	mustFollow(socialRepo, users[0].ID, users[1].ID)
	mustFollow(socialRepo, users[1].ID, users[0].ID)
	mustFollow(socialRepo, users[0].ID, users[2].ID)
	mustFollow(socialRepo, users[2].ID, users[0].ID)
	mustFollow(socialRepo, users[3].ID, users[0].ID)
	if err := socialRepo.Block(users[0].ID, users[4].ID); err != nil {
		log.Printf("block edge: %v", err)
	}

	for _, u := range users {
		token, err := jwtManager.GenerateToken(u.ID, u.Name, string(u.Role))
		if err != nil {
			log.Printf("token for %s: %v", u.Name, err)
			continue
		}
		log.Printf("%-28s %s\n  token: %s", u.Name, u.ID, token)
	}

	log.Println("seeding completed")
}

func seedUser(db *gorm.DB, name string, role model.UserRole) model.User {
	var existing model.User
	if err := db.Where("name = ?", name).First(&existing).Error; err == nil {
		return existing
	}

	user := model.User{
		ID:     uuid.New(),
		Name:   name,
		Role:   role,
		Avatar: "https://api.dicebear.com/7.x/avataaars/svg?seed=" + uuid.NewString()[:8],
	}
	if err := db.Create(&user).Error; err != nil {
		log.Fatalf("failed to create user %s: %v", name, err)
	}
	log.Printf("created user: %s (%s)", name, role)
	return user
}

func mustFollow(repo *repository.SocialRepository, follower, following uuid.UUID) {
	if err := repo.Follow(follower, following); err != nil {
		log.Printf("follow edge: %v", err)
	}
}

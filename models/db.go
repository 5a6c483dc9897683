package models

import (
	"database/sql"
	"encoding/json"
	"log"
	"os"
	"strings"
	"time"

	"PromptToVideo-server/config"

	_ "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

var DB *sql.DB
var GormDB *gorm.DB

func InitDB() {
	if config.AppConfig == nil {
		log.Fatal("config.AppConfig is nil, call config.InitConfig first")
	}
	dsn := config.AppConfig.MySQL.DSN
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		log.Fatalf("打开数据库失败: %v", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		log.Fatalf("连接数据库失败: %v", err)
	}

	DB = db
	GormDB, err = gorm.Open(mysql.New(mysql.Config{
		Conn: DB,
	}), &gorm.Config{})
	if err != nil {
		log.Fatalf("GORM 初始化失败: %v", err)
	}

	log.Println("数据库连接成功 (Native SQL + GORM)")

	// 自动建表（读取 doc/sql/PromptToVideo.sql）
	b, err := os.ReadFile("doc/sql/PromptToVideo.sql")
	if err != nil {
		log.Printf("读取 SQL 文件失败（跳过建表）: %v", err)
		return
	}
	sqls := strings.Split(string(b), ";")
	for _, s := range sqls {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, err := DB.Exec(s); err != nil {
			log.Printf("执行建表语句失败: %v ; sql: %s", err, s)
		}
	}
}

// Project CRUD（原生 SQL，和 scene/run 的 GORM 混用）
func CreateProject(p *Project) error {
	now := time.Now()
	p.CreatedAt = now
	p.UpdatedAt = now
	script, _ := json.Marshal(p.Script)
	_, err := DB.Exec(
		`INSERT INTO project (id, user_id, title, prompt, style, aspect_ratio, duration, status, script, video_url, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.UserId, p.Title, p.Prompt, p.Style, p.AspectRatio, p.Duration, p.Status, script, p.VideoUrl, p.CreatedAt, p.UpdatedAt,
	)
	return err
}

func GetProjectByID(id string) (Project, error) {
	var p Project
	row := DB.QueryRow(`SELECT id, user_id, title, prompt, style, aspect_ratio, duration, status, script, video_url, created_at, updated_at FROM project WHERE id = ?`, id)
	var scriptBytes []byte
	var videoURL sql.NullString
	var createdAt, updatedAt time.Time
	if err := row.Scan(&p.ID, &p.UserId, &p.Title, &p.Prompt, &p.Style, &p.AspectRatio, &p.Duration, &p.Status, &scriptBytes, &videoURL, &createdAt, &updatedAt); err != nil {
		return p, err
	}
	_ = json.Unmarshal(scriptBytes, &p.Script)
	if videoURL.Valid {
		p.VideoUrl = videoURL.String
	}
	p.CreatedAt = createdAt
	p.UpdatedAt = updatedAt
	return p, nil
}

func ListProjectsByUser(userID string) ([]Project, error) {
	rows, err := DB.Query(`SELECT id, user_id, title, prompt, style, aspect_ratio, duration, status, script, video_url, created_at, updated_at FROM project WHERE user_id = ? ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Project
	for rows.Next() {
		var p Project
		var scriptBytes []byte
		var videoURL sql.NullString
		var createdAt, updatedAt time.Time
		if err := rows.Scan(&p.ID, &p.UserId, &p.Title, &p.Prompt, &p.Style, &p.AspectRatio, &p.Duration, &p.Status, &scriptBytes, &videoURL, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		_ = json.Unmarshal(scriptBytes, &p.Script)
		if videoURL.Valid {
			p.VideoUrl = videoURL.String
		}
		p.CreatedAt = createdAt
		p.UpdatedAt = updatedAt
		res = append(res, p)
	}
	return res, nil
}

// UpdateProjectVideo 渲染成功后写入成片地址并置为 completed
func UpdateProjectVideo(id, videoURL, status string) error {
	_, err := DB.Exec(`UPDATE project SET video_url = ?, status = ?, updated_at = ? WHERE id = ?`, videoURL, status, time.Now(), id)
	return err
}

// UpdateProjectStatus 只改状态；completed 之后不再回退
func UpdateProjectStatus(id, status string) error {
	_, err := DB.Exec(`UPDATE project SET status = ?, updated_at = ? WHERE id = ? AND status != ?`, status, time.Now(), id, ProjectStatusCompleted)
	return err
}

// DeleteProjectByID 用户主动删除（级联删除分镜），流水线自身从不删项目
func DeleteProjectByID(id string) error {
	if _, err := DB.Exec(`DELETE FROM scene WHERE project_id = ?`, id); err != nil {
		return err
	}
	_, err := DB.Exec(`DELETE FROM project WHERE id = ?`, id)
	return err
}

// ============================================================================
// GormStore: 流水线依赖的持久化入口（service.Store 的 GORM 实现）
// ============================================================================

type GormStore struct {
	DB *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{DB: db}
}

func (s *GormStore) CreateProject(p *Project) error {
	now := time.Now()
	p.CreatedAt = now
	p.UpdatedAt = now
	return s.DB.Create(p).Error
}

func (s *GormStore) BatchCreateScenes(scenes []Scene) error {
	return BatchCreateScenes(s.DB, scenes)
}

func (s *GormStore) UpdateProjectVideo(projectID, videoURL, status string) error {
	return s.DB.Model(&Project{}).Where("id = ?", projectID).Updates(map[string]interface{}{
		"video_url":  videoURL,
		"status":     status,
		"updated_at": time.Now(),
	}).Error
}

func (s *GormStore) UpdateProjectStatus(projectID, status string) error {
	return s.DB.Model(&Project{}).
		Where("id = ? AND status != ?", projectID, ProjectStatusCompleted).
		Updates(map[string]interface{}{
			"status":     status,
			"updated_at": time.Now(),
		}).Error
}

func (s *GormStore) GetProfile(userID string) (*Profile, error) {
	return GetProfileByUserID(s.DB, userID)
}

func (s *GormStore) DebitCredits(userID string, amount int) error {
	return DebitCredits(s.DB, userID, amount)
}

func (s *GormStore) UpdateRunProgress(r *Run, step string, progress int, status string) error {
	return r.UpdateProgress(s.DB, step, progress, status)
}

func (s *GormStore) MarkRunFailed(r *Run, errMsg string) {
	r.MarkFailed(s.DB, errMsg)
}

func (s *GormStore) FinishRun(r *Run, projectID, videoURL string, creditsRemaining int) error {
	r.ProjectId = projectID
	r.VideoUrl = videoURL
	r.Status = RunStatusSuccess
	r.Step = StepCompleted
	r.Progress = 100
	r.CreditsRemaining = creditsRemaining
	return s.DB.Model(r).Updates(map[string]interface{}{
		"project_id":        projectID,
		"video_url":         videoURL,
		"status":            RunStatusSuccess,
		"step":              StepCompleted,
		"progress":          100,
		"credits_remaining": creditsRemaining,
		"updated_at":        time.Now(),
	}).Error
}

func (s *GormStore) SetRunProject(r *Run, projectID string) error {
	r.ProjectId = projectID
	return s.DB.Model(r).Updates(map[string]interface{}{
		"project_id": projectID,
		"updated_at": time.Now(),
	}).Error
}

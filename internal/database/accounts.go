package database

import (
	"context"
	"encoding/json"
	"fmt"

	"alfa-admin/internal/logger"
	"alfa-admin/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CreateAccount 创建新账号
func (db *DB) CreateAccount(ctx context.Context, acc *models.Account) error {
	if acc.ID == "" {
		acc.ID = uuid.New().String()
	}
	now := models.CurrentTime()
	if acc.CreatedAt == "" {
		acc.CreatedAt = now
	}
	if acc.UpdatedAt == "" {
		acc.UpdatedAt = now
	}

	logger.Debug("数据库: 创建账号 - ID: %s, 号码: %s", acc.ID, acc.Phone)

	if err := db.gorm.WithContext(ctx).Create(acc).Error; err != nil {
		logger.Debug("数据库: 创建账号失败 - ID: %s, 错误: %v", acc.ID, err)
		return err
	}

	db.NotifyChange(ChangeEvent{AccountID: acc.ID, OwnerID: acc.OwnerID, Kind: "created"})
	logger.Debug("数据库: 账号创建成功 - ID: %s", acc.ID)
	return nil
}

// GetAccount 根据 ID 获取账号
func (db *DB) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	logger.Debug("数据库: 查询账号 - ID: %s", id)

	var acc models.Account
	err := db.gorm.WithContext(ctx).Where("id = ?", id).First(&acc).Error
	if err == gorm.ErrRecordNotFound {
		logger.Debug("数据库: 账号不存在 - ID: %s", id)
		return nil, nil
	}
	if err != nil {
		logger.Debug("数据库: 查询账号失败 - ID: %s, 错误: %v", id, err)
		return nil, err
	}

	return &acc, nil
}

// GetAccountByPhone 根据主卡号码获取账号
func (db *DB) GetAccountByPhone(ctx context.Context, phone string) (*models.Account, error) {
	var acc models.Account
	err := db.gorm.WithContext(ctx).Where("phone = ?", phone).First(&acc).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &acc, nil
}

// ListAccounts 列出账号
// ownerID 非空时按租户过滤（管理员传空串看全部）
func (db *DB) ListAccounts(ctx context.Context, ownerID string, orderBy string, orderDesc bool) ([]*models.Account, error) {
	logger.Debug("数据库: 列出账号 - 租户: %q, 排序: %s %v", ownerID, orderBy, orderDesc)

	query := db.gorm.WithContext(ctx).Model(&models.Account{})

	if ownerID != "" {
		query = query.Where("owner_id = ?", ownerID)
	}

	// 验证 orderBy 防止 SQL 注入
	validOrderBy := map[string]bool{"created_at": true, "id": true, "name": true, "phone": true}
	if !validOrderBy[orderBy] {
		orderBy = "created_at"
	}

	order := orderBy
	if orderDesc {
		order += " DESC"
	} else {
		order += " ASC"
	}
	query = query.Order(order)

	var accounts []*models.Account
	if err := query.Find(&accounts).Error; err != nil {
		logger.Debug("数据库: 列出账号查询失败 - 错误: %v", err)
		return nil, err
	}

	logger.Debug("数据库: 列出账号成功 - 数量: %d", len(accounts))
	return accounts, nil
}

// PaginationResult 分页查询结果
// @author ygw
type PaginationResult struct {
	Total    int64 `json:"total"`       // 总记录数
	Page     int   `json:"page"`        // 当前页码
	PageSize int   `json:"page_size"`   // 每页数量
	Pages    int   `json:"total_pages"` // 总页数
}

// ListAccountsWithPagination 分页列出账号（支持租户过滤和名称/号码搜索）
// @author ygw
func (db *DB) ListAccountsWithPagination(ctx context.Context, ownerID, search, orderBy string, orderDesc bool, page, pageSize int) ([]*models.Account, *PaginationResult, error) {
	logger.Debug("数据库: 分页列出账号 - 租户: %q, 搜索: %q, 排序: %s %v, 页码: %d, 每页: %d", ownerID, search, orderBy, orderDesc, page, pageSize)

	// 参数校验
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 100
	}

	query := db.gorm.WithContext(ctx).Model(&models.Account{})

	if ownerID != "" {
		query = query.Where("owner_id = ?", ownerID)
	}
	if search != "" {
		like := "%" + search + "%"
		query = query.Where("name LIKE ? OR phone LIKE ?", like, like)
	}

	// 先查询总数
	var total int64
	if err := query.Count(&total).Error; err != nil {
		logger.Debug("数据库: 分页列出账号统计失败 - 错误: %v", err)
		return nil, nil, err
	}

	// 计算总页数
	pages := int(total) / pageSize
	if int(total)%pageSize > 0 {
		pages++
	}

	// 验证 orderBy 防止 SQL 注入
	validOrderBy := map[string]bool{
		"created_at": true,
		"id":         true,
		"name":       true,
		"phone":      true,
		"status":     true,
	}
	if !validOrderBy[orderBy] {
		orderBy = "created_at"
	}

	order := orderBy
	if orderDesc {
		order += " DESC"
	} else {
		order += " ASC"
	}

	// 计算偏移量
	offset := (page - 1) * pageSize

	var accounts []*models.Account
	if err := query.Order(order).Offset(offset).Limit(pageSize).Find(&accounts).Error; err != nil {
		logger.Debug("数据库: 分页列出账号查询失败 - 错误: %v", err)
		return nil, nil, err
	}

	pagination := &PaginationResult{
		Total:    total,
		Page:     page,
		PageSize: pageSize,
		Pages:    pages,
	}

	logger.Debug("数据库: 分页列出账号成功 - 数量: %d, 总数: %d, 页码: %d/%d", len(accounts), total, page, pages)
	return accounts, pagination, nil
}

// GetAccountCount 获取账号数量（轻量级查询）
func (db *DB) GetAccountCount(ctx context.Context) (int, error) {
	var count int64
	if err := db.gorm.WithContext(ctx).Model(&models.Account{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

// PatchAccount 局部更新账号，nil 字段不触碰
// 嵌套结构整体替换，不做深合并
func (db *DB) PatchAccount(ctx context.Context, id string, patch *models.AccountPatch) error {
	logger.Debug("数据库: 更新账号 - ID: %s", id)

	updateMap := make(map[string]interface{})

	if patch.Name != nil {
		updateMap["name"] = *patch.Name
	}
	if patch.Phone != nil {
		updateMap["phone"] = *patch.Phone
	}
	if patch.Quota != nil {
		updateMap["quota"] = *patch.Quota
	}
	if patch.Status != nil {
		updateMap["status"] = *patch.Status
	}
	if patch.PortalPassword != nil {
		updateMap["portal_password"] = *patch.PortalPassword
	}
	if patch.OwnerID != nil {
		updateMap["owner_id"] = *patch.OwnerID
	}
	if patch.NotUShare != nil {
		updateMap["not_ushare"] = *patch.NotUShare
	}
	if patch.AlfaData != nil {
		raw, err := json.Marshal(patch.AlfaData)
		if err != nil {
			return fmt.Errorf("编码 alfaData 失败: %w", err)
		}
		updateMap["alfa_data"] = raw
	}
	if patch.PendingSubscribers != nil {
		raw, _ := json.Marshal(patch.PendingSubscribers)
		updateMap["pending_subscribers"] = raw
	}
	if patch.RemovedSubscribers != nil {
		raw, _ := json.Marshal(patch.RemovedSubscribers)
		updateMap["removed_subscribers"] = raw
	}
	if patch.RemovedActiveSubscribers != nil {
		raw, _ := json.Marshal(patch.RemovedActiveSubscribers)
		updateMap["removed_active_subscribers"] = raw
	}
	if patch.LastRefreshTimestamp != nil {
		updateMap["last_refresh_timestamp"] = *patch.LastRefreshTimestamp
	}
	if patch.LastRefreshStatus != nil {
		updateMap["last_refresh_status"] = *patch.LastRefreshStatus
	}

	if len(updateMap) == 0 {
		logger.Debug("数据库: 更新账号无需更新 - ID: %s", id)
		return nil
	}

	updateMap["updated_at"] = models.CurrentTime()

	err := db.RetryOnLock(ctx, 5, func() error {
		return db.gorm.WithContext(ctx).Model(&models.Account{}).Where("id = ?", id).Updates(updateMap).Error
	})
	if err != nil {
		logger.Debug("数据库: 更新账号失败 - ID: %s, 错误: %v", id, err)
		return err
	}

	db.notifyAccount(ctx, id, "updated")
	logger.Debug("数据库: 账号更新成功 - ID: %s, 更新字段数: %d", id, len(updateMap))
	return nil
}

// UpdateAccountSnapshot 写入一次门户刷新的结果
// 刷新成功时同时更新快照和刷新时间，失败时只记录刷新状态
// @author ygw
func (db *DB) UpdateAccountSnapshot(ctx context.Context, id string, alfaData json.RawMessage, status string) error {
	logger.Debug("数据库: 更新账号快照 - ID: %s, 状态: %s", id, status)

	now := models.CurrentTime()
	updateMap := map[string]interface{}{
		"last_refresh_timestamp": now,
		"last_refresh_status":    status,
		"updated_at":             now,
	}
	if len(alfaData) > 0 {
		updateMap["alfa_data"] = alfaData
	}

	err := db.RetryOnLock(ctx, 5, func() error {
		return db.gorm.WithContext(ctx).Model(&models.Account{}).Where("id = ?", id).Updates(updateMap).Error
	})
	if err != nil {
		logger.Debug("数据库: 更新快照失败 - ID: %s, 错误: %v", id, err)
		return err
	}

	db.notifyAccount(ctx, id, "refreshed")
	return nil
}

// DeleteAccount 删除账号
func (db *DB) DeleteAccount(ctx context.Context, id string) error {
	logger.Debug("数据库: 删除账号 - ID: %s", id)

	// 先取归属用于广播
	acc, err := db.GetAccount(ctx, id)
	if err != nil {
		return err
	}

	result := db.gorm.WithContext(ctx).Where("id = ?", id).Delete(&models.Account{})
	if result.Error != nil {
		logger.Debug("数据库: 删除账号失败 - ID: %s, 错误: %v", id, result.Error)
		return result.Error
	}

	if acc != nil && result.RowsAffected > 0 {
		db.NotifyChange(ChangeEvent{AccountID: id, OwnerID: acc.OwnerID, Kind: "deleted"})
	}
	logger.Debug("数据库: 账号删除完成 - ID: %s, 影响行数: %d", id, result.RowsAffected)
	return nil
}

// AppendPendingSubscriber 把一个号码加入本地待确认列表
// 门户受理后号码会出现在下一次快照里，在那之前靠这份覆盖层展示
func (db *DB) AppendPendingSubscriber(ctx context.Context, id string, entry models.RosterEntry) error {
	return db.mutateRoster(ctx, id, func(acc *models.Account) error {
		pending := decodeRoster(acc.PendingSubscribers)
		for _, e := range pending {
			if e.PhoneNumber == entry.PhoneNumber {
				return fmt.Errorf("号码 %s 已在待确认列表中", entry.PhoneNumber)
			}
		}
		if entry.Status == "" {
			entry.Status = models.RosterStatusRequested
		}
		pending = append(pending, entry)
		acc.PendingSubscribers, _ = json.Marshal(pending)
		return nil
	})
}

// RemoveSubscriberLocally 把一个号码记入已移除覆盖层
// wasActive 表示移除时该副卡仍在计费周期内（仍占名册容量）
func (db *DB) RemoveSubscriberLocally(ctx context.Context, id, phone string, wasActive bool) error {
	return db.mutateRoster(ctx, id, func(acc *models.Account) error {
		// 从 pending 里摘掉
		pending := decodeRoster(acc.PendingSubscribers)
		kept := pending[:0]
		for _, e := range pending {
			if e.PhoneNumber != phone {
				kept = append(kept, e)
			}
		}
		acc.PendingSubscribers, _ = json.Marshal(kept)

		removed := decodeRoster(acc.RemovedSubscribers)
		if !rosterHas(removed, phone) {
			removed = append(removed, models.RosterEntry{PhoneNumber: phone, Status: models.RosterStatusActive})
			acc.RemovedSubscribers, _ = json.Marshal(removed)
		}

		if wasActive {
			removedActive := decodeRoster(acc.RemovedActiveSubscribers)
			if !rosterHas(removedActive, phone) {
				removedActive = append(removedActive, models.RosterEntry{PhoneNumber: phone, Status: models.RosterStatusActive})
				acc.RemovedActiveSubscribers, _ = json.Marshal(removedActive)
			}
		}
		return nil
	})
}

// ClearRemovedActiveSubscribers 清空已移除仍计费列表（计费周期翻转后调用）
func (db *DB) ClearRemovedActiveSubscribers(ctx context.Context, id string) error {
	return db.mutateRoster(ctx, id, func(acc *models.Account) error {
		acc.RemovedActiveSubscribers = json.RawMessage("[]")
		return nil
	})
}

// mutateRoster 读-改-写一个账号的名册覆盖层
func (db *DB) mutateRoster(ctx context.Context, id string, mutate func(*models.Account) error) error {
	acc, err := db.GetAccount(ctx, id)
	if err != nil {
		return err
	}
	if acc == nil {
		return fmt.Errorf("账号不存在: %s", id)
	}

	if err := mutate(acc); err != nil {
		return err
	}

	updateMap := map[string]interface{}{
		"pending_subscribers":        acc.PendingSubscribers,
		"removed_subscribers":        acc.RemovedSubscribers,
		"removed_active_subscribers": acc.RemovedActiveSubscribers,
		"updated_at":                 models.CurrentTime(),
	}

	err = db.RetryOnLock(ctx, 5, func() error {
		return db.gorm.WithContext(ctx).Model(&models.Account{}).Where("id = ?", id).Updates(updateMap).Error
	})
	if err != nil {
		return err
	}

	db.NotifyChange(ChangeEvent{AccountID: id, OwnerID: acc.OwnerID, Kind: "updated"})
	return nil
}

// ExportAllAccounts 导出所有账号（不分页）
// @author ygw
func (db *DB) ExportAllAccounts(ctx context.Context) ([]*models.Account, error) {
	logger.Debug("数据库: 导出所有账号")

	var accounts []*models.Account
	if err := db.gorm.WithContext(ctx).Order("created_at DESC").Find(&accounts).Error; err != nil {
		logger.Debug("数据库: 导出账号失败 - 错误: %v", err)
		return nil, err
	}

	logger.Debug("数据库: 导出账号成功 - 数量: %d", len(accounts))
	return accounts, nil
}

// notifyAccount 查出归属后广播变更
func (db *DB) notifyAccount(ctx context.Context, id, kind string) {
	acc, err := db.GetAccount(ctx, id)
	if err != nil || acc == nil {
		return
	}
	db.NotifyChange(ChangeEvent{AccountID: id, OwnerID: acc.OwnerID, Kind: kind})
}

// decodeRoster 解析名册覆盖层，解析失败视为空列表
func decodeRoster(raw json.RawMessage) []models.RosterEntry {
	if len(raw) == 0 {
		return nil
	}
	var entries []models.RosterEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil
	}
	return entries
}

func rosterHas(entries []models.RosterEntry, phone string) bool {
	for _, e := range entries {
		if e.PhoneNumber == phone {
			return true
		}
	}
	return false
}

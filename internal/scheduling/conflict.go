package scheduling

import (
	"sort"
	"strings"

	"academic-portal/backend/internal/model"
)

// ── 冲突检测 ──────────────────────────────────────────────
//
// 两个半开区间 [s1,e1) 与 [s2,e2) 重叠当且仅当 s1 < e2 && s2 < e1。
// 时间为零填充 HH:MM，字符串比较即时间比较。
//
// 有效排课按 (星期, 房间) 与 (星期, 教师) 分桶，桶内按开始时间排序。
// 由于同一桶内的有效排课互不重叠，结束时间同样有序，
// 只需二分定位插入点后向前检查相邻记录。
// ─────────────────────────────────────────────────────────────

type bucketKey struct {
	day model.Weekday
	key string
}

// ConflictChecker 基于一组有效排课快照的纯函数式冲突检测器
type ConflictChecker struct {
	rooms    map[bucketKey][]*model.TimetableEntry
	teachers map[bucketKey][]*model.TimetableEntry
}

// NewConflictChecker 以现有排课构建索引，已取消的排课被忽略
func NewConflictChecker(entries []model.TimetableEntry) *ConflictChecker {
	c := &ConflictChecker{
		rooms:    make(map[bucketKey][]*model.TimetableEntry),
		teachers: make(map[bucketKey][]*model.TimetableEntry),
	}
	for i := range entries {
		c.Add(&entries[i])
	}
	return c
}

// RoomKey 规范化房间号作为资源键
func RoomKey(roomNo string) string {
	return strings.TrimSpace(roomNo)
}

// Add 将排课插入索引并保持桶内有序
func (c *ConflictChecker) Add(e *model.TimetableEntry) {
	if !e.IsActive() {
		return
	}
	insertSorted(c.rooms, bucketKey{e.DayOfWeek, RoomKey(e.RoomNo)}, e)
	insertSorted(c.teachers, bucketKey{e.DayOfWeek, e.TeacherID}, e)
}

func insertSorted(index map[bucketKey][]*model.TimetableEntry, k bucketKey, e *model.TimetableEntry) {
	b := index[k]
	i := sort.Search(len(b), func(i int) bool { return !entryLess(b[i], e) })
	b = append(b, nil)
	copy(b[i+1:], b[i:])
	b[i] = e
	index[k] = b
}

func entryLess(a, b *model.TimetableEntry) bool {
	if a.StartTime != b.StartTime {
		return a.StartTime < b.StartTime
	}
	if a.EndTime != b.EndTime {
		return a.EndTime < b.EndTime
	}
	return a.EntryID < b.EntryID
}

// Check 检查候选排课与索引中有效排课的冲突
// excludeID 为更新场景下的自身 ID；候选的状态不参与判断
func (c *ConflictChecker) Check(candidate *model.TimetableEntry, excludeID string) ConflictResult {
	var res ConflictResult
	if hit := findOverlap(c.rooms[bucketKey{candidate.DayOfWeek, RoomKey(candidate.RoomNo)}], candidate, excludeID); hit != nil {
		res.Room = &Conflict{Dimension: DimensionRoom, With: hit.EntryID, Entry: hit}
	}
	if hit := findOverlap(c.teachers[bucketKey{candidate.DayOfWeek, candidate.TeacherID}], candidate, excludeID); hit != nil {
		res.Teacher = &Conflict{Dimension: DimensionTeacher, With: hit.EntryID, Entry: hit}
	}
	return res
}

// findOverlap 返回桶内与候选重叠且开始最早的排课
func findOverlap(bucket []*model.TimetableEntry, cand *model.TimetableEntry, excludeID string) *model.TimetableEntry {
	// [0, j) 为开始时间早于候选结束时间的排课
	j := sort.Search(len(bucket), func(i int) bool { return bucket[i].StartTime >= cand.EndTime })

	var hit *model.TimetableEntry
	for i := j - 1; i >= 0; i-- {
		e := bucket[i]
		if e.EntryID == excludeID {
			continue
		}
		if e.EndTime <= cand.StartTime {
			break
		}
		hit = e
	}
	return hit
}

// Overlaps 判断两个 HH:MM 半开区间是否重叠
func Overlaps(s1, e1, s2, e2 string) bool {
	return s1 < e2 && s2 < e1
}

// ConflictResult 冲突检测结果；两者均为空表示无冲突
type ConflictResult struct {
	Room    *Conflict
	Teacher *Conflict
}

// HasConflict 是否存在任一维度冲突
func (r ConflictResult) HasConflict() bool {
	return r.Room != nil || r.Teacher != nil
}

// All 按房间、教师顺序返回全部冲突
func (r ConflictResult) All() []Conflict {
	var out []Conflict
	if r.Room != nil {
		out = append(out, *r.Room)
	}
	if r.Teacher != nil {
		out = append(out, *r.Teacher)
	}
	return out
}

// Err 转换为 *ConflictError；无冲突时返回 nil
// 房间冲突总是优先于教师冲突作为主冲突
func (r ConflictResult) Err() error {
	all := r.All()
	if len(all) == 0 {
		return nil
	}
	primary := all[0]
	return &ConflictError{
		Dimension: primary.Dimension,
		With:      primary.With,
		Entry:     primary.Entry,
		Conflicts: all,
	}
}
